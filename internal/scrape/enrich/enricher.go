// Package enrich looks for contact emails on a business website.
package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/logging"
	"mapsharvest-engine/internal/scrape/util"
)

// Cache remembers the joined result per site key (see siteKey).
type Cache interface {
	Lookup(ctx context.Context, site string) (emails string, ok bool)
	Remember(ctx context.Context, site, emails string)
}

type Option func(*Enricher)

func WithHTTPClient(c *http.Client) Option { return func(e *Enricher) { e.client = c } }
func WithCache(c Cache) Option             { return func(e *Enricher) { e.cache = c } }
func WithMXVerifier(v MXVerifier) Option   { return func(e *Enricher) { e.mx = v } }

type Enricher struct {
	cfg     config.Enrich
	client  *http.Client
	limiter *util.HostLimiter
	cache   Cache
	mx      MXVerifier
	log     *slog.Logger
}

func New(cfg config.Enrich, opts ...Option) *Enricher {
	e := &Enricher{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: util.NewHostLimiter(cfg.RequestsPerSecond, cfg.Burst),
		log:     logging.New("enrich"),
	}
	if cfg.VerifyMX {
		e.mx = NewDNSVerifier(cfg.DNSServer)
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich returns up to MaxEmails addresses joined by ", ", or "" when the
// site has none or cannot be fetched.
func (e *Enricher) Enrich(ctx context.Context, website string) string {
	if e == nil || !e.cfg.Enabled {
		return ""
	}
	website = normalizeWebsite(website)
	if website == "" {
		return ""
	}
	key := siteKey(website)
	if e.cache != nil && key != "" {
		if v, ok := e.cache.Lookup(ctx, key); ok {
			return v
		}
	}

	emails, reached := e.discover(ctx, website)
	if e.mx != nil {
		kept := emails[:0]
		for _, m := range emails {
			if e.mx.HasMX(ctx, Domain(m)) {
				kept = append(kept, m)
			}
		}
		emails = kept
	}
	joined := strings.Join(emails, ", ")

	if e.cache != nil && key != "" && reached && ctx.Err() == nil {
		e.cache.Remember(ctx, key, joined)
	}
	return joined
}

// discover reports reached=false when the site itself could not be fetched.
func (e *Enricher) discover(ctx context.Context, website string) (emails []string, reached bool) {
	body, final, err := e.fetch(ctx, website)
	if err != nil {
		e.log.Debug("fetch failed", "url", website, "err", err)
		return nil, false
	}
	if found := e.filter(FindEmails(body)); len(found) > 0 {
		return found, true
	}

	base := strings.TrimRight(final, "/")
	for _, suffix := range e.cfg.ContactSuffixes {
		if ctx.Err() != nil {
			return nil, true
		}
		body, _, err := e.fetch(ctx, base+suffix)
		if err != nil {
			e.log.Debug("contact page failed", "url", base+suffix, "err", err)
			continue
		}
		if found := e.filter(FindEmails(body)); len(found) > 0 {
			return found, true
		}
	}
	return nil, true
}

func (e *Enricher) filter(found []string) []string {
	max := e.cfg.MaxEmails
	if max <= 0 {
		max = 3
	}
	return FilterEmails(found, max, e.cfg.ExcludeSuffixes...)
}

func (e *Enricher) fetch(ctx context.Context, target string) (body, final string, err error) {
	if err := e.limiter.WaitURL(ctx, target); err != nil {
		return "", "", err
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", err
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("%s: status %d", target, resp.StatusCode)
	}

	limit := e.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 2 << 20
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", "", err
	}
	return string(b), resp.Request.URL.String(), nil
}

// normalizeWebsite unwraps Google redirect links and adds a missing scheme.
func normalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && strings.HasSuffix(u.Host, "google.com") && u.Path == "/url" {
		if q := u.Query().Get("q"); q != "" {
			raw = q
		}
	}
	if !strings.HasPrefix(strings.ToLower(raw), "http") {
		raw = "https://" + strings.TrimLeft(raw, "/")
	}
	return raw
}

// siteKey identifies a website by host and path. Listings often point at
// pages on a shared host (social profiles, link pages), so the host alone
// is not enough.
func siteKey(website string) string {
	u, err := url.Parse(website)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host + strings.TrimRight(u.EscapedPath(), "/")
}
