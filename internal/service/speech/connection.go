package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	edgeOrigin    = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"
	edgeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"
)

// ConnectionOptions 连接配置选项
type ConnectionOptions struct {
	HandshakeTimeout time.Duration // 握手超时时间
	MaxRetries       int           // 最大尝试次数
	RetryDelay       time.Duration // 重试基础间隔
}

// DefaultConnectionOptions 默认连接选项
func DefaultConnectionOptions() *ConnectionOptions {
	return &ConnectionOptions{
		HandshakeTimeout: 10 * time.Second,
		MaxRetries:       3,
		RetryDelay:       500 * time.Millisecond,
	}
}

// Connector 负责建立朗读服务的 WebSocket 连接，并根据服务端时间校正 Sec-MS-GEC 所需的时钟偏差。
type Connector struct {
	endpoint string
	token    string
	options  *ConnectionOptions
	dialer   *websocket.Dialer

	mu        sync.Mutex
	clockSkew time.Duration
	now       func() time.Time
}

// NewConnector 创建连接器
func NewConnector(endpoint, token string, options *ConnectionOptions) *Connector {
	if options == nil {
		options = DefaultConnectionOptions()
	}

	return &Connector{
		endpoint: endpoint,
		token:    token,
		options:  options,
		dialer: &websocket.Dialer{
			HandshakeTimeout: options.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		now: time.Now,
	}
}

// ConnectWithRetry 带重试的连接建立
func (c *Connector) ConnectWithRetry(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error

	for i := 0; i < c.options.MaxRetries; i++ {
		conn, err := c.connect(ctx)
		if err == nil {
			return conn, nil
		}

		lastErr = err

		// 如果是上下文取消，直接返回
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryableError(err) {
			break
		}

		retryDelay := time.Duration(i+1) * c.options.RetryDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts, last error: %w", c.options.MaxRetries, lastErr)
}

// connect 建立单次连接
func (c *Connector) connect(ctx context.Context) (*websocket.Conn, error) {
	connectionID := strings.ReplaceAll(uuid.NewString(), "-", "")

	wsURL, err := buildEndpointURL(c.endpoint, c.token, connectionID, c.adjustedNow())
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Origin", edgeOrigin)
	header.Set("User-Agent", edgeUserAgent)
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache")
	header.Set("Accept-Language", "en-US,en;q=0.9")

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			c.adjustClockSkew(resp.Header.Get("Date"))
			return nil, &handshakeError{status: resp.StatusCode, err: err}
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	return conn, nil
}

func (c *Connector) adjustedNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Add(c.clockSkew)
}

// adjustClockSkew 服务端拒绝握手时，按其 Date 头修正本地时钟偏差。
func (c *Connector) adjustClockSkew(date string) {
	if date == "" {
		return
	}
	serverTime, err := http.ParseTime(date)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clockSkew = serverTime.Sub(c.now())
	log.Printf("[TTS] handshake rejected, clock skew adjusted to %s", c.clockSkew)
}

type handshakeError struct {
	status int
	err    error
}

func (e *handshakeError) Error() string {
	return fmt.Sprintf("websocket handshake rejected with status %d: %v", e.status, e.err)
}

func (e *handshakeError) Unwrap() error {
	return e.err
}

// IsRetryableError 判断错误是否可重试
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// 时钟偏差导致的 403 修正后可以重试
	var hsErr *handshakeError
	if errors.As(err, &hsErr) {
		return true
	}

	if websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseGoingAway) {
		return true
	}

	return false
}
