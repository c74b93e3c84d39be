package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// MXVerifier reports whether a mail domain can receive mail.
type MXVerifier interface {
	HasMX(ctx context.Context, domain string) bool
}

// DNSVerifier asks one resolver for MX records and memoizes answers.
// Transport errors count as "yes" so a flaky resolver never drops addresses.
type DNSVerifier struct {
	server string
	client *dns.Client

	mu   sync.Mutex
	memo map[string]bool
}

func NewDNSVerifier(server string) *DNSVerifier {
	if server == "" {
		server = "8.8.8.8:53"
	}
	return &DNSVerifier{
		server: server,
		client: &dns.Client{Timeout: 3 * time.Second},
		memo:   map[string]bool{},
	}
}

func (v *DNSVerifier) HasMX(ctx context.Context, domain string) bool {
	v.mu.Lock()
	if ok, hit := v.memo[domain]; hit {
		v.mu.Unlock()
		return ok
	}
	v.mu.Unlock()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	resp, _, err := v.client.ExchangeContext(ctx, msg, v.server)
	if err != nil || resp == nil {
		return true
	}
	ok := resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0

	v.mu.Lock()
	v.memo[domain] = ok
	v.mu.Unlock()
	return ok
}
