// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/gorilla/websocket"
)

// BridgeConfig describes a WebSocket serial bridge: a network endpoint that
// forwards binary messages to and from a device serial port.
type BridgeConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
	Timeout       time.Duration
}

// WebSocketTransport exchanges frames with a device through a bridge
type WebSocketTransport struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	name    string
	timeout time.Duration
	broken  bool
}

// DialBridge opens a WebSocket connection with optional HTTP Basic auth
func DialBridge(ctx context.Context, cfg BridgeConfig) (*WebSocketTransport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, classifyOpen(cfg.URL, fmt.Errorf("invalid URL: %w", err))
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, classifyOpen(cfg.URL, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme))
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, classifyOpen(cfg.URL, fmt.Errorf("HTTP %d: %w", resp.StatusCode, err))
		}
		return nil, classifyOpen(cfg.URL, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = lumidox.DefaultTimeout
	}

	return &WebSocketTransport{conn: conn, name: u.Host, timeout: timeout}, nil
}

func (w *WebSocketTransport) Name() string {
	return w.name
}

// Request sends frame as one binary message and collects binary messages
// until the response end marker or the timeout. Text messages are skipped.
// A read error leaves the connection unusable.
func (w *WebSocketTransport) Request(frame []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken {
		return nil, &Error{Op: "request", Port: w.name, Kind: ErrUnavailable, Err: errors.New("connection closed")}
	}

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return nil, &Error{Op: "write", Port: w.name, Kind: ErrIO, Err: err}
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		w.broken = true
		return nil, &Error{Op: "write", Port: w.name, Kind: ErrIO, Err: err}
	}

	if err := w.conn.SetReadDeadline(time.Now().Add(w.timeout)); err != nil {
		return nil, &Error{Op: "read", Port: w.name, Kind: ErrIO, Err: err}
	}

	var reply []byte
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.broken = true
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if len(reply) > 0 {
					return reply, nil
				}
				return nil, timeoutError(w.name)
			}
			return nil, &Error{Op: "read", Port: w.name, Kind: ErrIO, Err: err}
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		reply = append(reply, data...)
		if i := bytes.IndexByte(reply, lumidox.ResponseEnd); i >= 0 {
			return reply[:i+1], nil
		}
		if len(reply) >= lumidox.MaxResponseSize {
			return reply, nil
		}
	}
}

// Close sends a close frame and closes the connection
func (w *WebSocketTransport) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.broken = true
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}
