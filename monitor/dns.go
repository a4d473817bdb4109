package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/eryajf/promwrite"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// ResolverConfig controls how the remote write host is re-resolved. With
// Enable unset only the system resolver is used, and only after a failed
// write.
type ResolverConfig struct {
	Enable          bool
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	Timeout         time.Duration
	UDP             []string // host:port, e.g. "1.1.1.1:53"
	TLS             []string // host:port, e.g. "9.9.9.9:853"
	DoH             []string // endpoint URLs
}

func (c ResolverConfig) withDefaults() ResolverConfig {
	c.CacheTTL = pickDuration(c.CacheTTL, 10*time.Minute)
	c.RefreshInterval = pickDuration(c.RefreshInterval, 5*time.Minute)
	c.Timeout = pickDuration(c.Timeout, 800*time.Millisecond)
	c.UDP = slices.Clone(c.UDP)
	c.TLS = slices.Clone(c.TLS)
	c.DoH = slices.Clone(c.DoH)
	return c
}

type dnsCacheEntry struct {
	ips     []string
	expires time.Time
}

// lookupFunc returns the IPv4 addresses of host as seen by one upstream
type lookupFunc func(ctx context.Context, host string) ([]string, error)

func (c ResolverConfig) upstreams() []lookupFunc {
	var fns []lookupFunc
	for _, server := range c.UDP {
		fns = append(fns, exchangeVia("udp", server, c.Timeout))
	}
	for _, server := range c.TLS {
		fns = append(fns, exchangeVia("tcp-tls", server, c.Timeout))
	}
	for _, endpoint := range c.DoH {
		fns = append(fns, dohVia(endpoint))
	}
	return append(fns, lookupSystem)
}

// resolveFastest asks every upstream at once and keeps the first answer
// that has addresses.
func (c ResolverConfig) resolveFastest(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	type answer struct {
		ips []string
		err error
	}
	fns := c.upstreams()
	answers := make(chan answer, len(fns))
	for _, fn := range fns {
		go func() {
			ips, err := fn(ctx, host)
			answers <- answer{ips, err}
		}()
	}

	var firstErr error
	for range fns {
		select {
		case a := <-answers:
			if a.err == nil && len(a.ips) > 0 {
				return a.ips, nil
			}
			if firstErr == nil {
				firstErr = a.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("no address for %s", host)
	}
	return nil, firstErr
}

func question(host string) *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(host), dns.TypeA)
	return q
}

func answerIPs(reply *dns.Msg) ([]string, error) {
	if reply == nil {
		return nil, fmt.Errorf("empty dns reply")
	}
	if reply.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns rcode %s", dns.RcodeToString[reply.Rcode])
	}
	var ips []string
	for _, rr := range reply.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips, nil
}

// exchangeVia queries server over network, "udp" or "tcp-tls"
func exchangeVia(network, server string, timeout time.Duration) lookupFunc {
	return func(ctx context.Context, host string) ([]string, error) {
		client := &dns.Client{Net: network, Timeout: timeout}
		reply, _, err := client.ExchangeContext(ctx, question(host), server)
		if err != nil {
			return nil, fmt.Errorf("%s dns via %s: %w", network, server, err)
		}
		return answerIPs(reply)
	}
}

// dohVia posts a wire-format query to a DNS-over-HTTPS endpoint
func dohVia(endpoint string) lookupFunc {
	return func(ctx context.Context, host string) ([]string, error) {
		wire, err := question(host).Pack()
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wire))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/dns-message")
		req.Header.Set("Accept", "application/dns-message")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("doh via %s: status %d", endpoint, resp.StatusCode)
		}
		wire, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		reply := new(dns.Msg)
		if err := reply.Unpack(wire); err != nil {
			return nil, err
		}
		return answerIPs(reply)
	}
}

func lookupSystem(ctx context.Context, host string) ([]string, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return nil, err
	}
	ips := make([]string, len(addrs))
	for i, addr := range addrs {
		ips[i] = addr.Unmap().String()
	}
	return ips, nil
}

func (t *target) current() *promwrite.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// named reports whether the target host is a name rather than an address
func (t *target) named() bool {
	return t.host != "" && net.ParseIP(t.host) == nil
}

// refresh re-resolves the target host and replaces the client when the
// address set changed, or unconditionally with force. Unforced refreshes
// run at most once a minute. It reports whether the client was replaced.
func (t *target) refresh(ctx context.Context, logger *zap.Logger, force bool) bool {
	if !t.named() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !force && time.Since(t.resolved) < time.Minute {
		return false
	}
	t.resolved = time.Now()

	var (
		ips []string
		err error
	)
	entry, cached := t.cache[t.host]
	switch {
	case cached && !force && time.Now().Before(entry.expires):
		ips = entry.ips
	case t.resolver.Enable:
		ips, err = t.resolver.resolveFastest(ctx, t.host)
	default:
		ips, err = lookupSystem(ctx, t.host)
	}
	if err != nil || len(ips) == 0 {
		logger.Warn("resolving remote write host", zap.String("host", t.host), zap.Error(err))
		return false
	}

	slices.Sort(ips)
	if t.resolver.Enable {
		t.cache[t.host] = dnsCacheEntry{ips: ips, expires: time.Now().Add(t.resolver.CacheTTL)}
	}
	changed := !slices.Equal(ips, t.ips)
	t.ips = ips
	if !changed && !force {
		return false
	}

	t.client = promwrite.NewClient(t.url)
	logger.Info("remote write client replaced", zap.String("host", t.host), zap.Strings("ips", ips))
	return true
}
