package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Info 节点 /getinfo 返回的链状态
type Info struct {
	Difficulty uint64 `json:"difficulty"`
	Height     uint64 `json:"height"`
	TxCount    uint64 `json:"tx_count,omitempty"`
	Status     string `json:"status,omitempty"`
}

// Client 币种节点客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建节点客户端
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetInfo 获取当前难度和高度
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/getinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("getinfo: read response error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getinfo: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("getinfo: unmarshal error: %w", err)
	}
	if info.Difficulty == 0 {
		return nil, fmt.Errorf("getinfo: 难度为 0: %s", string(body))
	}
	return &info, nil
}

// RPCError JSON-RPC 错误
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	ID       string      `json:"id"`
	JSONRPC  string      `json:"jsonrpc"`
	Method   string      `json:"method"`
	Params   interface{} `json:"params"`
	Password string      `json:"password,omitempty"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// JSONRPC 节点或钱包的 /json_rpc 客户端
type JSONRPC struct {
	url        string
	password   string
	nextID     atomic.Uint64
	httpClient *http.Client
}

// NewJSONRPC 创建 JSON-RPC 客户端，baseURL 不含 /json_rpc
func NewJSONRPC(baseURL, password string, timeout time.Duration) *JSONRPC {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JSONRPC{
		url:        strings.TrimRight(baseURL, "/") + "/json_rpc",
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Call 调用 method，结果解析到 out（可为 nil）
func (r *JSONRPC) Call(ctx context.Context, method string, params, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		ID:       fmt.Sprintf("%d", r.nextID.Add(1)),
		JSONRPC:  "2.0",
		Method:   method,
		Params:   params,
		Password: r.password,
	})
	if err != nil {
		return fmt.Errorf("marshal body error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response error: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("%s: unmarshal error: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%s: unmarshal result error: %w", method, err)
		}
	}
	return nil
}
