package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供仓库坐标字段，供代理请求日志复用。
func RequestFields(owner, region, domain, repository string) logrus.Fields {
	return logrus.Fields{
		"owner":      owner,
		"region":     region,
		"domain":     domain,
		"repository": repository,
	}
}
