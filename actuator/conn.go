// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package actuator

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

// ConnectionProvider is a function that returns a net.Conn connected to an
// MQTT broker that is ready to read from and write to. The returned net.Conn
// must be thread-safe (concurrent Write calls must not interleave).
type ConnectionProvider func(context.Context) (net.Conn, error)

// TCPConnection is a ConnectionProvider that connects to the broker over TCP.
func TCPConnection(hostname string, port int) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(
			ctx,
			"tcp",
			fmt.Sprintf("%s:%d", hostname, port),
		)
		if err != nil {
			return nil, fmt.Errorf("error opening TCP connection: %w", err)
		}
		return conn, nil
	}
}

// TLSConnection is a ConnectionProvider that connects to the broker with TLS
// over TCP.
func TLSConnection(
	hostname string,
	port int,
	config *tls.Config,
) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		d := tls.Dialer{Config: config}
		conn, err := d.DialContext(
			ctx,
			"tcp",
			fmt.Sprintf("%s:%d", hostname, port),
		)
		if err != nil {
			return nil, fmt.Errorf("error opening TLS connection: %w", err)
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// WebSocketConnection is a ConnectionProvider that connects to the broker
// over a websocket, for deployments where only HTTP(S) egress is allowed.
func WebSocketConnection(requestURL string) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		d := websocket.Dialer{
			Proxy:        websocket.DefaultDialer.Proxy,
			Subprotocols: []string{"mqtt"},
		}
		conn, _, err := d.DialContext(ctx, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("error opening websocket connection: %w", err)
		}
		return packets.NewThreadSafeConn(&wsConn{conn: conn}), nil
	}
}

// wsConn adapts a websocket connection to net.Conn. Each Write is one binary
// websocket message; Reads drain successive binary messages.
type wsConn struct {
	conn   *websocket.Conn
	reader interface{ Read([]byte) (int, error) }
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if n > 0 {
			return n, nil
		}
		// Message exhausted; move to the next one.
		c.reader = nil
		if err != nil && err != io.EOF {
			return 0, err
		}
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error                       { return c.conn.Close() }
func (c *wsConn) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error      { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
