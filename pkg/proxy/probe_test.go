package proxy

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	if !Reachable(context.Background(), addr, time.Second) {
		t.Error("expected listening address to be reachable")
	}

	ln.Close()
	if Reachable(context.Background(), addr, 200*time.Millisecond) {
		t.Error("expected closed address to be unreachable")
	}
}

func TestEgressChecker_PlainAndJSON(t *testing.T) {
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.7\n"))
	}))
	defer plain.Close()

	jsonSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"2001:db8::42","country":"HK"}`))
	}))
	defer jsonSrv.Close()

	e, err := NewEgressChecker(EgressConfig{URL: plain.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ip, err := e.IP(context.Background()); err != nil || ip != "203.0.113.7" {
		t.Errorf("expected plain IP, got %q (%v)", ip, err)
	}

	e, _ = NewEgressChecker(EgressConfig{URL: jsonSrv.URL})
	if ip, err := e.IP(context.Background()); err != nil || ip != "2001:db8::42" {
		t.Errorf("expected JSON IP, got %q (%v)", ip, err)
	}
}

func TestEgressChecker_ThroughProxy(t *testing.T) {
	var seen string
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.String()
		w.Write([]byte("198.51.100.1"))
	}))
	defer proxySrv.Close()

	proxyURL, _ := url.Parse(proxySrv.URL)
	e, _ := NewEgressChecker(EgressConfig{
		URL:       "http://ip.test/",
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	})

	ip, err := e.IP(context.Background())
	if err != nil || ip != "198.51.100.1" {
		t.Fatalf("expected proxied IP, got %q (%v)", ip, err)
	}
	if seen != "http://ip.test/" {
		t.Errorf("expected proxy to receive absolute URL, got %q", seen)
	}
}

func TestEgressChecker_BadBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>captive portal</html>"))
	}))
	defer ts.Close()

	e, _ := NewEgressChecker(EgressConfig{URL: ts.URL})
	if _, err := e.IP(context.Background()); err == nil {
		t.Error("expected error for non-IP body")
	}
}
