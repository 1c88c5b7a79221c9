package tenhou

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"TenhouSync/internal/config"
	"TenhouSync/internal/interfaces"
	"TenhouSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// recordsGroup 战绩正则里必须存在的命名组
const recordsGroup = "records"

// Client 天凤抓取客户端：牌谱JSON按ref抓取，战绩流水按玩家名抓取
type Client struct {
	cfg          *config.TenhouConfig
	httpClient   *http.Client
	recordsRegex *regexp.Regexp
	logger       *logrus.Logger
}

func NewClient(cfg *config.TenhouConfig, logger *logrus.Logger) (interfaces.FetchClient, error) {
	re, err := regexp.Compile(cfg.RecordsRegex)
	if err != nil {
		return nil, fmt.Errorf("编译战绩正则失败: %w", err)
	}
	hasGroup := false
	for _, name := range re.SubexpNames() {
		if name == recordsGroup {
			hasGroup = true
			break
		}
	}
	if !hasGroup {
		return nil, fmt.Errorf("战绩正则缺少%s命名组: %s", recordsGroup, cfg.RecordsRegex)
	}
	return &Client{
		cfg:          cfg,
		httpClient:   httpclient.NewHTTPClient(cfg, logger),
		recordsRegex: re,
		logger:       logger,
	}, nil
}

// FetchLogJSON 抓取一局牌谱的JSON文本。
// 天凤的牌谱接口形态是 log_url?<ref>，响应必须是以'{'开头的合法JSON。
func (c *Client) FetchLogJSON(ctx context.Context, ref string) (string, error) {
	body, err := c.get(ctx, c.cfg.LogURL+"?"+ref, map[string]string{
		"Referer": c.cfg.LogURL,
	})
	if err != nil {
		return "", fmt.Errorf("抓取牌谱%s失败: %w", ref, err)
	}
	if !strings.HasPrefix(body, "{") || !json.Valid([]byte(body)) {
		return "", fmt.Errorf("牌谱%s响应不是合法JSON: %s", ref, truncate(body, 64))
	}
	return body, nil
}

// FetchPlayerRecords 抓取玩家全部战绩流水，取响应中records命名组的内容
func (c *Client) FetchPlayerRecords(ctx context.Context, name string) (string, error) {
	u := fmt.Sprintf("%s?name=%s", c.cfg.RecordsURL, url.QueryEscape(name))
	body, err := c.get(ctx, u, nil)
	if err != nil {
		return "", fmt.Errorf("抓取玩家%s战绩失败: %w", name, err)
	}
	match := c.recordsRegex.FindStringSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("玩家%s战绩响应无法匹配正则%s", name, c.cfg.RecordsRegex)
	}
	for i, groupName := range c.recordsRegex.SubexpNames() {
		if groupName == recordsGroup {
			return match[i], nil
		}
	}
	return "", fmt.Errorf("战绩正则缺少%s命名组", recordsGroup)
}

// get 带重试的GET，非200视为失败
func (c *Client) get(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	attempts := c.cfg.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		body, err := c.getOnce(ctx, rawURL, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.WithError(err).Warnf("请求失败（第%d/%d次）: %s", i+1, attempts, rawURL)
	}
	return "", lastErr
}

func (c *Client) getOnce(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("构造请求失败: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求失败: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Errorf("关闭响应体失败: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("非法状态码: [%d]%s", resp.StatusCode, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}
	return string(data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
