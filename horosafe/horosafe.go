// Package horosafe guards the URLs handed to the browser: only http(s)
// targets on public addresses are accepted, so a screenshot request cannot
// be used to reach the host's loopback or internal network (SSRF).
//
// Hosts are interpreted the way a browser interprets them: numeric forms
// such as 2130706433, 0x7f000001, 127.1 or 0177.0.0.1 are IPv4 literals,
// not names to resolve.
package horosafe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// MaxURLLen bounds target URLs accepted from clients.
const MaxURLLen = 8192

// ErrSSRF is returned when a URL targets a private/loopback address.
var ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")

// ErrInvalidURL is returned for URLs that cannot be navigated to at all.
var ErrInvalidURL = errors.New("horosafe: invalid URL")

// ErrUnresolvable is returned when a host name does not resolve. The check
// fails closed: an unverifiable host is rejected.
var ErrUnresolvable = errors.New("horosafe: host does not resolve")

// Resolver is the subset of *net.Resolver used for DNS checks.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// CheckURL validates syntax and scheme only: absolute http(s) URL with a host.
func CheckURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if len(rawURL) > MaxURLLen {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrInvalidURL, MaxURLLen)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: no host", ErrInvalidURL)
	}
	return u, nil
}

// ValidateURL checks that rawURL uses http/https, has a hostname, and does
// not point to a private or loopback IP.
func ValidateURL(rawURL string) error {
	return ValidateURLContext(context.Background(), net.DefaultResolver, rawURL)
}

// ValidateURLContext is ValidateURL with an explicit resolver and deadline.
// Every resolved address is checked to catch internal hostnames.
func ValidateURLContext(ctx context.Context, r Resolver, rawURL string) error {
	u, err := CheckURL(rawURL)
	if err != nil {
		return err
	}
	return CheckHost(ctx, r, u.Hostname())
}

// CheckRequestURL vets a request issued by the page itself (subresource,
// redirect target, websocket). Schemes that never reach the network pass.
func CheckRequestURL(ctx context.Context, r Resolver, u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ws", "wss":
		return CheckHost(ctx, r, u.Hostname())
	case "data", "blob", "about":
		return nil
	}
	return ErrUnsafeScheme
}

// CheckHost rejects hosts that are, or resolve to, non-public addresses.
func CheckHost(ctx context.Context, r Resolver, host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return fmt.Errorf("%w: no host", ErrInvalidURL)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return checkAddr(ip)
	}
	if ip, numeric, err := parseIPv4Host(host); numeric {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		return checkAddr(ip)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ErrSSRF
	}

	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnresolvable, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s", ErrUnresolvable, host)
	}
	for _, a := range addrs {
		if err := checkAddr(a); err != nil {
			return err
		}
	}
	return nil
}

func checkAddr(ip netip.Addr) error {
	if isPrivateIP(ip) {
		return ErrSSRF
	}
	return nil
}

// parseIPv4Host applies the URL Standard's IPv4 parser. numeric reports
// whether the host ends in a number, in which case a browser treats it as
// an address (and rejects it when malformed) instead of resolving it.
func parseIPv4Host(host string) (ip netip.Addr, numeric bool, err error) {
	parts := strings.Split(host, ".")
	if !isIPv4Number(parts[len(parts)-1]) {
		return netip.Addr{}, false, nil
	}
	if len(parts) > 4 {
		return netip.Addr{}, true, fmt.Errorf("ipv4 host %q has more than four parts", host)
	}
	nums := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := parseIPv4Part(p)
		if err != nil {
			return netip.Addr{}, true, fmt.Errorf("ipv4 host %q: %w", host, err)
		}
		nums[i] = n
	}
	last := len(nums) - 1
	for _, n := range nums[:last] {
		if n > 255 {
			return netip.Addr{}, true, fmt.Errorf("ipv4 host %q: part out of range", host)
		}
	}
	if nums[last] >= 1<<(8*(5-len(nums))) {
		return netip.Addr{}, true, fmt.Errorf("ipv4 host %q: last part out of range", host)
	}
	v := nums[last]
	for i, n := range nums[:last] {
		v += n << (8 * (3 - i))
	}
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), true, nil
}

func isIPv4Number(p string) bool {
	if p == "" {
		return false
	}
	if strings.Trim(p, "0123456789") == "" {
		return true
	}
	_, err := parseIPv4Part(p)
	return err == nil
}

func parseIPv4Part(p string) (uint64, error) {
	if p == "" {
		return 0, errors.New("empty part")
	}
	base := 10
	switch {
	case len(p) >= 2 && (p[:2] == "0x" || p[:2] == "0X"):
		p, base = p[2:], 16
		if p == "" {
			return 0, nil
		}
	case len(p) >= 2 && p[0] == '0':
		p, base = p[1:], 8
	}
	n, err := strconv.ParseUint(p, base, 64)
	if err != nil {
		return 0, fmt.Errorf("bad part %q", p)
	}
	return n, nil
}

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("fc00::/7"),
}

func isPrivateIP(ip netip.Addr) bool {
	ip = ip.Unmap().WithZone("")
	if ip.IsLoopback() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, p := range privateRanges {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
