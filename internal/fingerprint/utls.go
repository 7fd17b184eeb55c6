package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// TransportConfig configures Transport.
type TransportConfig struct {
	Profile Profile
	// Proxy routes every request through this URL when set.
	Proxy *url.URL
	// InsecureSkipVerify disables certificate checks. Tests only.
	InsecureSkipVerify bool
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome, "":
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	default:
		return utls.ClientHelloID{}, fmt.Errorf("fingerprint: unknown profile %q", p)
	}
}

// Transport returns an http.RoundTripper presenting the TLS fingerprint of
// cfg.Profile. The "go" profile returns a plain cloned http.Transport.
func Transport(cfg TransportConfig) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != nil {
		transport.Proxy = http.ProxyURL(cfg.Proxy)
	} else {
		transport.Proxy = nil
	}

	if cfg.Profile == ProfileGo {
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		return transport, nil
	}

	id, err := helloID(cfg.Profile)
	if err != nil {
		return nil, err
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}, id)

		// http.Transport only speaks HTTP/1.1 over a custom TLS dialer.
		if err := uConn.BuildHandshakeState(); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: build handshake: %w", err)
		}
		for _, ext := range uConn.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = []string{"http/1.1"}
			}
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake failed: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}
