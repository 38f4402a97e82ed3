package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

// ErrUnsafeURL is returned for URLs the fetcher refuses to contact.
var ErrUnsafeURL = errors.New("unsafe url")

// Resolver is the subset of net.Resolver the guard needs.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
	netip.MustParsePrefix("100::/64"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("fec0::/10"),
}

// IsPublicAddr reports whether addr is a globally routable unicast address:
// not private, loopback, link-local, multicast, unspecified or reserved.
func IsPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return false
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() || addr.IsUnspecified() {
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// Guard decides whether a URL may be fetched.
type Guard struct {
	Resolver Resolver
	// Allow decides per resolved address. Defaults to IsPublicAddr.
	Allow func(netip.Addr) bool
}

func NewGuard() *Guard {
	return &Guard{Resolver: net.DefaultResolver, Allow: IsPublicAddr}
}

func (g *Guard) allow(addr netip.Addr) bool {
	if g.Allow == nil {
		return IsPublicAddr(addr)
	}
	return g.Allow(addr)
}

// Check validates scheme and host and resolves the host; every resolved
// address must pass Allow. A resolution failure counts as unsafe.
func (g *Guard) Check(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not allowed", ErrUnsafeURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrUnsafeURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !g.allow(addr) {
			return nil, fmt.Errorf("%w: address %s not allowed", ErrUnsafeURL, addr)
		}
		return u, nil
	}

	resolver := g.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve %s", ErrUnsafeURL, host)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s has no addresses", ErrUnsafeURL, host)
	}
	for _, a := range addrs {
		addr, ok := netip.AddrFromSlice(a.IP)
		if !ok || !g.allow(addr) {
			return nil, fmt.Errorf("%w: %s resolves to %s", ErrUnsafeURL, host, a.IP)
		}
	}
	return u, nil
}

// dialControl re-checks the address actually being connected to, so a host
// that re-resolves to an internal address between Check and dial is refused.
func (g *Guard) dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || !g.allow(addr) {
		return fmt.Errorf("%w: refusing to connect to %s", ErrUnsafeURL, host)
	}
	return nil
}
