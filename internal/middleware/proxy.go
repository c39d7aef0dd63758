package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Forwarding headers set by reverse proxies and CDNs
const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	HeaderTrueClientIP = "True-Client-IP"
)

// ProxyHeaders resolves the caller address from forwarding headers, but only
// when the socket peer is a trusted proxy. Requests from any other peer have
// the forwarding headers and the configured edge headers (such as the
// country header) stripped, so a client cannot choose its own rate limit
// bucket, blacklist identity or country.
type ProxyHeaders struct {
	trusted     []netip.Prefix
	edgeHeaders []string
}

// NewProxyHeaders parses trusted as CIDR ranges or bare addresses. An empty
// list trusts nobody and every request is judged by its socket address.
func NewProxyHeaders(trusted []string, edgeHeaders ...string) (*ProxyHeaders, error) {
	p := &ProxyHeaders{}
	for _, raw := range trusted {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		prefix, err := parseTrusted(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		p.trusted = append(p.trusted, prefix)
	}
	for _, h := range edgeHeaders {
		if h != "" {
			p.edgeHeaders = append(p.edgeHeaders, h)
		}
	}
	return p, nil
}

func parseTrusted(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Handler rewrites RemoteAddr for requests relayed by a trusted proxy
func (p *ProxyHeaders) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peer, ok := parseAddr(r.RemoteAddr)
		if !ok || !p.isTrusted(peer) {
			p.strip(r.Header)
			next.ServeHTTP(w, r)
			return
		}
		if client, ok := p.clientAddr(r.Header); ok {
			r.RemoteAddr = client.String()
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr walks X-Forwarded-For from the nearest hop outward and returns
// the first address not owned by a trusted proxy. When every hop is trusted
// the farthest one wins.
func (p *ProxyHeaders) clientAddr(h http.Header) (netip.Addr, bool) {
	var hops []string
	for _, v := range h.Values(HeaderForwardedFor) {
		hops = append(hops, strings.Split(v, ",")...)
	}
	var farthest netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseAddr(strings.TrimSpace(hops[i]))
		if !ok {
			// A garbled hop means nothing beyond it can be trusted
			break
		}
		if !p.isTrusted(addr) {
			return addr, true
		}
		farthest = addr
	}
	if farthest.IsValid() {
		return farthest, true
	}
	for _, name := range []string{HeaderRealIP, HeaderTrueClientIP} {
		if addr, ok := parseAddr(strings.TrimSpace(h.Get(name))); ok {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func (p *ProxyHeaders) isTrusted(addr netip.Addr) bool {
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (p *ProxyHeaders) strip(h http.Header) {
	h.Del(HeaderForwardedFor)
	h.Del(HeaderRealIP)
	h.Del(HeaderTrueClientIP)
	for _, name := range p.edgeHeaders {
		h.Del(name)
	}
}

// parseAddr accepts "host:port" or a bare address
func parseAddr(s string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
