package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ca-hub/ca-hub/internal/config"
	"github.com/ca-hub/ca-hub/internal/credential"
	"github.com/ca-hub/ca-hub/internal/logging"
	"github.com/ca-hub/ca-hub/internal/metrics"
	"github.com/ca-hub/ca-hub/internal/mirror"
	"github.com/ca-hub/ca-hub/internal/proxy"
	"github.com/ca-hub/ca-hub/internal/server"
	"github.com/ca-hub/ca-hub/internal/server/routes"
	"github.com/ca-hub/ca-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(*cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["listen_port"] = cfg.ListenPort
		fields["mirror_enabled"] = cfg.MirrorEnabled
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序“配置 → 凭证缓存 → 镜像判定 → 代理 handler → Fiber server”，
	// 所有请求共享同一凭证缓存与出站连接池。
	collector := metrics.NewCollector(nil)
	issuer := credential.NewHTTPIssuer(
		server.NewCredentialClient(cfg),
		cfg.CredentialEndpoint,
		cfg.TokenValiditySeconds(),
	)
	cache := credential.NewCache(issuer, cfg.TokenValidity.DurationValue(), logger, collector)
	resolver := mirror.NewResolver(
		server.NewProbeClient(cfg),
		cfg.PublicIndex,
		cfg.MirrorEnabled,
		logger,
		collector,
	)

	handler, err := proxy.NewHandler(proxy.HandlerOptions{
		Client:           server.NewUpstreamClient(cfg),
		Credentials:      cache,
		Mirror:           resolver,
		Logger:           logger,
		Collector:        collector,
		UpstreamEndpoint: cfg.UpstreamEndpoint,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建代理处理器失败: %v\n", err)
		return 1
	}

	var sweeper *credential.Sweeper
	if cfg.TokenSweepSchedule != "" {
		sweeper, err = credential.NewSweeper(cache, cfg.TokenSweepSchedule, logger)
		if err != nil {
			fmt.Fprintf(stdErr, "构建凭证清扫任务失败: %v\n", err)
			return 1
		}
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.ListenPort
	fields["public_index"] = cfg.PublicIndex
	fields["mirror_enabled"] = cfg.MirrorEnabled
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, handler, cache, collector, sweeper, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("ca-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 CA_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("CA_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(
	cfg *config.Config,
	proxyHandler server.ProxyHandler,
	cache *credential.Cache,
	collector *metrics.Collector,
	sweeper *credential.Sweeper,
	logger *logrus.Logger,
) error {
	port := cfg.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      proxyHandler,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterHealthRoutes(app, cache)
	routes.RegisterDiagnosticsRoutes(app, collector)

	if sweeper != nil {
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	// SIGINT/SIGTERM 触发优雅退出：先停监听，defer 再等清扫任务收尾。
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.WithFields(logrus.Fields{
			"action": "shutdown",
			"signal": sig.String(),
		}).Info("server_stopping")
		if err := app.Shutdown(); err != nil {
			logger.WithFields(logrus.Fields{
				"action": "shutdown",
				"error":  err.Error(),
			}).Warn("shutdown_failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("server_starting")

	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "shutdown",
		"port":   port,
	}).Info("server_stopped")
	return nil
}
