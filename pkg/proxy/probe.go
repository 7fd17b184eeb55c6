package proxy

import (
	"context"
	"net"
	"time"
)

// Reachable reports whether something accepts TCP connections on addr.
func Reachable(ctx context.Context, addr string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
