// Package netguard gates every outbound request to a user- or feed-supplied
// URL. Targets that resolve to loopback, link-local or cloud metadata
// addresses are rejected before any connection is attempted, and again at
// dial time so DNS rebinding and redirects cannot slip past the check.
package netguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	sharedhttp "Gamarr/shared/http"
	"Gamarr/shared/logger"
)

// ErrUnsafeURL matches every rejection made by the guard.
var ErrUnsafeURL = errors.New("unsafe URL")

// UnsafeURLError describes why a URL was rejected.
type UnsafeURLError struct {
	URL    string
	Reason string
}

func (e *UnsafeURLError) Error() string {
	return fmt.Sprintf("unsafe URL %q: %s", e.URL, e.Reason)
}

func (e *UnsafeURLError) Is(target error) bool {
	return target == ErrUnsafeURL
}

// metadataAddrs are cloud instance metadata endpoints. They stay blocked even
// when private networks are allowed.
var metadataAddrs = []netip.Addr{
	netip.MustParseAddr("169.254.169.254"), // AWS, GCP, Azure, OpenStack
	netip.MustParseAddr("169.254.170.2"),   // ECS task metadata
	netip.MustParseAddr("100.100.100.200"), // Alibaba
	netip.MustParseAddr("fd00:ec2::254"),   // AWS IPv6
}

// Resolver looks up the addresses behind a host name.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type Guard struct {
	resolver     Resolver
	allowPrivate bool
	logger       *slog.Logger
}

type Option func(*Guard)

// WithResolver replaces the system resolver.
func WithResolver(r Resolver) Option {
	return func(g *Guard) {
		g.resolver = r
	}
}

// WithAllowPrivateNetworks permits loopback and link-local targets, for local
// development against services on the same host. Metadata endpoints remain
// blocked.
func WithAllowPrivateNetworks(allow bool) Option {
	return func(g *Guard) {
		g.allowPrivate = allow
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = l
	}
}

func New(opts ...Option) *Guard {
	g := &Guard{resolver: net.DefaultResolver}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logger.Component(g.logger, "netguard")
	return g
}

// Check validates rawURL and every address its host resolves to.
func (g *Guard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return &UnsafeURLError{URL: rawURL, Reason: "malformed URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &UnsafeURLError{URL: rawURL, Reason: fmt.Sprintf("scheme %q is not allowed", u.Scheme)}
	}
	host := u.Hostname()
	if host == "" {
		return &UnsafeURLError{URL: rawURL, Reason: "missing host"}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if reason := g.blockReason(addr); reason != "" {
			return &UnsafeURLError{URL: rawURL, Reason: reason}
		}
		return nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("failed to resolve %s: no addresses", host)
	}
	for _, ia := range addrs {
		addr, ok := netip.AddrFromSlice(ia.IP)
		if !ok {
			return &UnsafeURLError{URL: rawURL, Reason: "unparseable resolved address"}
		}
		if reason := g.blockReason(addr); reason != "" {
			return &UnsafeURLError{URL: rawURL, Reason: fmt.Sprintf("%s resolves to %s", host, reason)}
		}
	}
	return nil
}

func (g *Guard) blockReason(addr netip.Addr) string {
	addr = addr.Unmap()
	for _, m := range metadataAddrs {
		if addr == m {
			return "cloud metadata address " + addr.String()
		}
	}
	if addr.IsUnspecified() {
		return "unspecified address " + addr.String()
	}
	if g.allowPrivate {
		return ""
	}
	switch {
	case addr.IsLoopback():
		return "loopback address " + addr.String()
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local address " + addr.String()
	case addr.IsMulticast():
		return "multicast address " + addr.String()
	}
	return ""
}

// Client returns an HTTP client whose dialer and redirect policy re-apply the
// guard to every connection it makes.
func (g *Guard) Client(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			addr, err := netip.ParseAddr(host)
			if err != nil {
				return &UnsafeURLError{URL: address, Reason: "unparseable dial address"}
			}
			if reason := g.blockReason(addr); reason != "" {
				return &UnsafeURLError{URL: address, Reason: reason}
			}
			return nil
		},
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			return g.Check(req.Context(), req.URL.String())
		},
	}
}

// Get checks rawURL and performs a GET through a guarded client. Non-200
// responses are returned as *sharedhttp.StatusError.
func (g *Guard) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := g.Check(ctx, rawURL); err != nil {
		g.logger.Warn("rejected outbound request", "url", rawURL, "error", err)
		return nil, err
	}
	return sharedhttp.MakeRequest(ctx, g.Client(sharedhttp.DefaultTimeout), rawURL)
}

// Fetch reads at most limit bytes from rawURL.
func (g *Guard) Fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	resp, err := g.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", resp.Request.URL.Host, limit)
	}
	return body, nil
}
