package enrich

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	strictEmail  = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9-]+(\.[a-z0-9-]+)*\.[a-z]{2,}$`)
)

// AssetSuffixes are file names that look like addresses, e.g. logo@2x.png.
var AssetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// FindEmails returns every address-shaped string in body, including
// mailto: targets, in document order.
func FindEmails(body string) []string {
	out := emailPattern.FindAllString(body, -1)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return out
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
			return
		}
		addr := href[7:]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if dec, err := url.PathUnescape(addr); err == nil {
			addr = dec
		}
		for _, a := range strings.Split(addr, ",") {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
	})
	return out
}

// FilterEmails lowercases, validates and dedupes found, drops asset-like
// names and keeps at most max. exclude defaults to AssetSuffixes.
func FilterEmails(found []string, max int, exclude ...string) []string {
	if len(exclude) == 0 {
		exclude = AssetSuffixes
	}
	seen := map[string]bool{}
	var out []string
	for _, raw := range found {
		e := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "<>()[]{}.,;:\"'"))
		if seen[e] || !strictEmail.MatchString(e) || hasSuffix(e, exclude) {
			continue
		}
		seen[e] = true
		out = append(out, e)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func hasSuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, strings.ToLower(suf)) {
			return true
		}
	}
	return false
}

// Domain returns the part after the @.
func Domain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
