package harvest

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/scrape/util"
)

// Snapshot is one parse of the rendered page.
type Snapshot struct {
	Base      string
	Document  *goquery.Document
	Container *goquery.Selection
}

// Strategy pulls raw candidate links out of a snapshot.
type Strategy interface {
	Name() string
	Find(s Snapshot) []string
}

type strategyFunc struct {
	name string
	fn   func(Snapshot) []string
}

func (s strategyFunc) Name() string              { return s.name }
func (s strategyFunc) Find(sn Snapshot) []string { return s.fn(sn) }

func hrefs(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, a *goquery.Selection) {
		if h, ok := a.Attr("href"); ok && strings.TrimSpace(h) != "" {
			out = append(out, h)
		}
	})
	return out
}

func attrValues(root *goquery.Selection, attrs []string) []string {
	var out []string
	for _, attr := range attrs {
		root.Find("[" + attr + "]").Each(func(_ int, n *goquery.Selection) {
			if v, ok := n.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = append(out, v)
			}
		})
	}
	return out
}

// Structural reads result anchors identified by their card markup.
func Structural(selectors []string) Strategy {
	return strategyFunc{"structural", func(s Snapshot) []string {
		var out []string
		for _, sel := range selectors {
			out = append(out, hrefs(s.Container.Find(sel))...)
		}
		return out
	}}
}

// AttributeMarker reads links stashed in data attributes.
func AttributeMarker(attrs []string) Strategy {
	return strategyFunc{"attribute", func(s Snapshot) []string {
		return attrValues(s.Container, attrs)
	}}
}

// GenericLinks takes every anchor in the container.
func GenericLinks() Strategy {
	return strategyFunc{"links", func(s Snapshot) []string {
		return hrefs(s.Container.Find("a[href]"))
	}}
}

// WholeDocument ignores the container and scans the entire page.
func WholeDocument(attrs []string) Strategy {
	return strategyFunc{"document", func(s Snapshot) []string {
		root := s.Document.Selection
		return append(hrefs(root.Find("a[href]")), attrValues(root, attrs)...)
	}}
}

// Chain tries strategies in order and keeps the first one that yields
// identifiers matching pattern.
type Chain struct {
	strategies []Strategy
	pattern    *regexp.Regexp
}

func NewChain(pattern *regexp.Regexp, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, pattern: pattern}
}

func DefaultChain(cfg config.Harvest) (*Chain, error) {
	re, err := regexp.Compile(cfg.IdentifierPattern)
	if err != nil {
		return nil, err
	}
	return NewChain(re,
		Structural(cfg.StructuralSelectors),
		AttributeMarker(cfg.AttributeMarkers),
		GenericLinks(),
		WholeDocument(cfg.AttributeMarkers),
	), nil
}

// Run returns the identifiers from the first productive strategy and its name.
func (c *Chain) Run(s Snapshot) ([]domain.CandidateIdentifier, string) {
	for _, st := range c.strategies {
		if ids := c.filter(s.Base, st.Find(s)); len(ids) > 0 {
			return ids, st.Name()
		}
	}
	return nil, ""
}

// Sweep runs every strategy against the whole page and merges the results.
func (c *Chain) Sweep(s Snapshot) []domain.CandidateIdentifier {
	whole := s
	whole.Container = s.Document.Selection
	var out []domain.CandidateIdentifier
	for _, st := range c.strategies {
		out = append(out, c.filter(s.Base, st.Find(whole))...)
	}
	return out
}

// Identifier canonicalizes raw against base, or returns "" if it does not look like a result.
func (c *Chain) Identifier(base, raw string) domain.CandidateIdentifier {
	u := util.CanonicalizeURL(util.ResolveURL(base, raw))
	if u == "" || !c.pattern.MatchString(u) {
		return ""
	}
	return domain.CandidateIdentifier(u)
}

func (c *Chain) filter(base string, raw []string) []domain.CandidateIdentifier {
	var out []domain.CandidateIdentifier
	for _, r := range raw {
		if id := c.Identifier(base, r); id != "" {
			out = append(out, id)
		}
	}
	return out
}
