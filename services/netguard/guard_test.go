package netguard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func testResolver() fakeResolver {
	return fakeResolver{
		"example.com":       {"93.184.216.34"},
		"localhost":         {"127.0.0.1", "::1"},
		"rebind.attacker":   {"93.184.216.34", "169.254.169.254"},
		"nas.home.internal": {"192.168.1.20"},
	}
}

func TestCheck(t *testing.T) {
	g := New(WithResolver(testResolver()))

	tests := []struct {
		url    string
		unsafe bool
	}{
		{"http://example.com/rss", false},
		{"https://example.com/feed.xml", false},
		{"http://169.254.169.254/latest/meta-data/", true},
		{"http://[fd00:ec2::254]/latest", true},
		{"http://100.100.100.200/", true},
		{"http://127.0.0.1:8080/", true},
		{"http://localhost/admin", true},
		{"http://[::1]/", true},
		{"http://0.0.0.0/", true},
		{"http://[::ffff:169.254.169.254]/", true},
		{"http://rebind.attacker/", true},
		{"file:///etc/passwd", true},
		{"gopher://example.com/", true},
		{"http:///nohost", true},
		{"http://nas.home.internal/rss", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := g.Check(context.Background(), tt.url)
			if tt.unsafe {
				if !errors.Is(err, ErrUnsafeURL) {
					t.Fatalf("Check(%q) = %v, want ErrUnsafeURL", tt.url, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check(%q) = %v, want nil", tt.url, err)
			}
		})
	}
}

func TestCheckResolutionFailureIsNotUnsafe(t *testing.T) {
	g := New(WithResolver(testResolver()))
	err := g.Check(context.Background(), "http://unknown.invalid/")
	if err == nil {
		t.Fatal("expected resolution error")
	}
	if errors.Is(err, ErrUnsafeURL) {
		t.Fatalf("resolution failure reported as unsafe: %v", err)
	}
}

func TestAllowPrivateNetworksStillBlocksMetadata(t *testing.T) {
	g := New(WithResolver(testResolver()), WithAllowPrivateNetworks(true))

	if err := g.Check(context.Background(), "http://127.0.0.1:9000/"); err != nil {
		t.Fatalf("loopback should be allowed: %v", err)
	}
	if err := g.Check(context.Background(), "http://169.254.169.254/"); !errors.Is(err, ErrUnsafeURL) {
		t.Fatalf("metadata endpoint must stay blocked, got %v", err)
	}
}

func TestGetRejectsBeforeConnecting(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	g := New()
	_, err := g.Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnsafeURL) {
		t.Fatalf("Get(%q) = %v, want ErrUnsafeURL", srv.URL, err)
	}
	if hits != 0 {
		t.Fatalf("server received %d requests", hits)
	}
}

func TestClientBlocksRedirectToMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
	}))
	defer srv.Close()

	g := New(WithAllowPrivateNetworks(true))
	_, err := g.Get(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnsafeURL) {
		t.Fatalf("redirect to metadata = %v, want ErrUnsafeURL", err)
	}
}

func TestFetchEnforcesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	g := New(WithAllowPrivateNetworks(true))
	if _, err := g.Fetch(context.Background(), srv.URL, 16); err == nil {
		t.Fatal("expected size limit error")
	}
	body, err := g.Fetch(context.Background(), srv.URL, 128)
	if err != nil {
		t.Fatalf("Fetch error = %v", err)
	}
	if len(body) != 64 {
		t.Fatalf("len(body) = %d", len(body))
	}
}
