package pool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hashbid/config"
)

// HTTPController 通过矿池代理的控制接口启停：POST {control_url}/start 或 /stop
type HTTPController struct {
	controlURLs map[string]string
	httpClient  *http.Client
}

// NewHTTPController 从矿池配置创建
func NewHTTPController(pools []config.PoolConfig, timeout time.Duration) *HTTPController {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	urls := make(map[string]string, len(pools))
	for _, p := range pools {
		if p.ControlURL != "" {
			urls[p.Host] = strings.TrimRight(p.ControlURL, "/")
		}
	}
	return &HTTPController{
		controlURLs: urls,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPController) Start(ctx context.Context, host string) error {
	return c.send(ctx, host, "start")
}

func (c *HTTPController) Stop(ctx context.Context, host string) error {
	return c.send(ctx, host, "stop")
}

func (c *HTTPController) send(ctx context.Context, host, action string) error {
	base, ok := c.controlURLs[host]
	if !ok {
		return fmt.Errorf("矿池 %s 未配置控制地址", host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/"+action, nil)
	if err != nil {
		return fmt.Errorf("create request error: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response error: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
