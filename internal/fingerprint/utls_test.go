package fingerprint

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	profiles := []Profile{
		ProfileChrome,
		ProfileFirefox,
		ProfileSafari,
		ProfileGo,
		ProfileRandom,
	}

	for _, p := range profiles {
		t.Run(string(p), func(t *testing.T) {
			rt, err := Transport(TransportConfig{Profile: p, InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}

			client := &http.Client{Transport: rt}
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_Proxy(t *testing.T) {
	var proxied bool
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied = r.URL.Host == "egress.test"
		w.WriteHeader(http.StatusOK)
	}))
	defer proxy.Close()

	proxyURL, _ := url.Parse(proxy.URL)
	rt, err := Transport(TransportConfig{Profile: ProfileGo, Proxy: proxyURL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := (&http.Client{Transport: rt}).Get("http://egress.test/ip")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if !proxied {
		t.Error("expected request to be routed through the proxy")
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(TransportConfig{Profile: "unknown_browser"})
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `fingerprint: unknown profile "unknown_browser"` {
		t.Errorf("unexpected error message: %v", err)
	}
}
