package argocd

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// idleTimeoutConn arms a fresh read deadline before every read, so a
// read fails once the peer has been silent for timeout. A zero timeout
// leaves reads unbounded.
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleTimeoutConn) Read(b []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

// watchTransport returns a single-use HTTP/1.1 transport whose
// connections enforce the idle read timeout. HTTP/2 is disabled
// because its shared frame reader would turn one stream's deadline
// into a failure of the whole connection.
func (c *Client) watchTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	t := c.baseTransport()
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &idleTimeoutConn{Conn: conn, timeout: timeout}, nil
	}
	t.DisableKeepAlives = true
	t.ForceAttemptHTTP2 = false
	t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return t
}
