package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ca-hub/ca-hub/internal/config"
)

// ErrEmptyToken 表示凭证接口应答成功但 token 字段为空。
var ErrEmptyToken = errors.New("credential response missing token value")

// Issuer 向凭证服务换取短期访问令牌。
type Issuer interface {
	Issue(ctx context.Context, id Identity) (string, error)
}

// HTTPIssuer 调用 CodeArtifact 风格的 authorization-token 接口。
type HTTPIssuer struct {
	client          *http.Client
	endpoint        string
	durationSeconds int64
}

// NewHTTPIssuer 构建 HTTP Issuer，endpoint 支持 {region} 等占位符。
func NewHTTPIssuer(client *http.Client, endpoint string, durationSeconds int64) *HTTPIssuer {
	return &HTTPIssuer{
		client:          client,
		endpoint:        endpoint,
		durationSeconds: durationSeconds,
	}
}

// Issue 发起一次凭证请求；缓存与并发去重由调用方负责，本方法不做重试。
func (i *HTTPIssuer) Issue(ctx context.Context, id Identity) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.requestURL(id), http.NoBody)
	if err != nil {
		return "", err
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf(
			"credential request failed: status=%d body=%s",
			resp.StatusCode,
			strings.TrimSpace(string(body)),
		)
	}

	var tokenResp struct {
		AuthorizationToken string `json:"authorizationToken"`
		Token              string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode credential response: %w", err)
	}

	token := tokenResp.AuthorizationToken
	if token == "" {
		token = tokenResp.Token
	}
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// requestURL 展开端点模板并拼接授权接口的路径与查询参数。
func (i *HTTPIssuer) requestURL(id Identity) string {
	base := config.ExpandEndpoint(i.endpoint, config.EndpointVars{
		Owner:      id.Owner,
		Region:     id.Region,
		Domain:     id.Domain,
		Repository: id.Repository,
	})

	query := url.Values{}
	query.Set("domain", id.Domain)
	query.Set("domain-owner", id.Owner)
	query.Set("duration", strconv.FormatInt(i.durationSeconds, 10))

	return base + "/v1/authorization-token?" + query.Encode()
}
