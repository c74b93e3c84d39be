package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"mapsharvest-engine/internal/domain"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg plus the problems found.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			if seen[x] {
				continue
			}
			seen[x] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Gateway.Markers.Location = trimList(out.Gateway.Markers.Location)
	out.Gateway.Markers.Title = trimList(out.Gateway.Markers.Title)
	out.Harvest.ContainerLocators = trimList(out.Harvest.ContainerLocators)
	out.Harvest.NoResultsMarkers = trimList(out.Harvest.NoResultsMarkers)
	out.Harvest.EndSelectors = trimList(out.Harvest.EndSelectors)
	out.Harvest.EndTexts = trimList(out.Harvest.EndTexts)
	out.Harvest.StructuralSelectors = trimList(out.Harvest.StructuralSelectors)
	out.Harvest.AttributeMarkers = trimList(out.Harvest.AttributeMarkers)
	out.Extract.Root = trimList(out.Extract.Root)
	out.Enrich.ContactSuffixes = trimList(out.Enrich.ContactSuffixes)
	out.Search.LocationHints = trimList(out.Search.LocationHints)

	// tiers are evaluated lowest bound first
	tiers := append([]Tier(nil), out.Harvest.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Below < tiers[j].Below })
	out.Harvest.Tiers = tiers

	// ---- app ----
	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}
	switch out.App.LogFormat {
	case "", "text", "json":
	default:
		res.addErr("app.log_format must be text or json")
	}

	// ---- search ----
	if !strings.Contains(out.Search.URLTemplate, "{query}") {
		res.addErr("search.url_template must contain {query}")
	}

	// ---- gateway ----
	if out.Gateway.OverallTimeout <= 0 {
		res.addErr("gateway.overall_timeout must be > 0")
	}
	if len(out.Gateway.Markers.Location) == 0 && len(out.Gateway.Markers.Title) == 0 {
		res.addWarn("gateway.markers is empty; interstitials will never be detected.")
	}
	if len(out.Gateway.Tactics) == 0 {
		res.addWarn("gateway.tactics is empty; a detected interstitial can never be cleared.")
	}
	for i, t := range out.Gateway.Tactics {
		if t.Timeout <= 0 {
			res.addErr("gateway.tactics[%d].timeout must be > 0", i)
		} else if t.Timeout > out.Gateway.OverallTimeout && out.Gateway.OverallTimeout > 0 {
			res.addWarn("gateway.tactics[%d].timeout exceeds gateway.overall_timeout", i)
		}
		switch t.Kind {
		case "alternate_address":
			if strings.TrimSpace(t.Template) == "" {
				res.addErr("gateway.tactics[%d].template is required for alternate_address", i)
			}
		case "acknowledge":
			if len(t.Locators) == 0 {
				res.addErr("gateway.tactics[%d].locators must have at least 1 entry", i)
			}
			for j, l := range t.Locators {
				if l.By != "css" && l.By != "xpath" {
					res.addErr("gateway.tactics[%d].locators[%d].by must be css or xpath", i, j)
				}
				if strings.TrimSpace(l.Expr) == "" {
					res.addErr("gateway.tactics[%d].locators[%d].expr cannot be empty", i, j)
				}
			}
		default:
			res.addErr("gateway.tactics[%d].kind %q is unknown", i, t.Kind)
		}
	}

	// ---- harvest ----
	h := out.Harvest
	if len(h.ContainerLocators) == 0 {
		res.addErr("harvest.container_locators must have at least 1 entry")
	}
	if _, err := regexp.Compile(h.IdentifierPattern); err != nil || h.IdentifierPattern == "" {
		res.addErr("harvest.identifier_pattern must be a valid regular expression")
	}
	if h.MaxIterations <= 0 {
		res.addErr("harvest.max_iterations must be > 0")
	}
	if h.DefaultTolerance <= 0 {
		res.addErr("harvest.default_tolerance must be > 0")
	}
	for i, t := range h.Tiers {
		if t.Below <= 0 || t.Tolerance <= 0 {
			res.addErr("harvest.tiers[%d] needs below > 0 and tolerance > 0", i)
		}
		if t.Tolerance < h.DefaultTolerance {
			res.addWarn("harvest.tiers[%d].tolerance is lower than default_tolerance; sparse lists will give up sooner than dense ones.", i)
		}
	}
	if h.ScrollStep <= 0 {
		res.addErr("harvest.scroll_step must be > 0")
	}
	if h.ContainerWait <= 0 || h.PollInterval <= 0 {
		res.addErr("harvest.container_wait and harvest.poll_interval must be > 0")
	}

	// ---- extract ----
	if len(out.Extract.Fields) == 0 {
		res.addWarn("extract.fields is empty; records will only carry their source address.")
	}
	for name, f := range out.Extract.Fields {
		if len(f.Selectors) == 0 {
			res.addErr("extract.fields.%s.selectors must have at least 1 entry", name)
		}
	}

	// ---- enrich ----
	if out.Enrich.Enabled {
		if out.Enrich.Timeout <= 0 {
			res.addErr("enrich.timeout must be > 0")
		}
		if out.Enrich.MaxEmails <= 0 {
			res.addErr("enrich.max_emails must be > 0")
		}
		if out.Enrich.RequestsPerSecond <= 0 {
			res.addErr("enrich.requests_per_second must be > 0")
		}
		if out.Enrich.VerifyMX && strings.TrimSpace(out.Enrich.DNSServer) == "" {
			res.addErr("enrich.dns_server is required when enrich.verify_mx=true")
		}
	}

	// ---- output / storage ----
	if _, err := domain.ParseOutputFormat(out.Output.DefaultFormat); err != nil {
		res.addErr("output.default_format: %v", err)
	}
	if strings.TrimSpace(out.Output.Dir) == "" {
		res.addErr("output.dir is required")
	}
	if out.Storage.SQLite && strings.TrimSpace(out.Storage.DBName) == "" {
		res.addErr("storage.db_name is required when storage.sqlite=true")
	}
	if out.Storage.HistoryRetention <= 0 {
		out.Storage.HistoryRetention = 30 * 24 * time.Hour
	}
	if out.Jobs.PruneEvery <= 0 {
		out.Jobs.PruneEvery = 10 * time.Minute
	}
	if out.Jobs.ShutdownGrace <= 0 {
		out.Jobs.ShutdownGrace = 30 * time.Second
	}
	if out.Jobs.Retention <= 0 {
		out.Jobs.Retention = 24 * time.Hour
	}
	if out.Jobs.MessageLimit <= 0 {
		res.addWarn("jobs.message_limit is %d; status responses will carry no messages.", out.Jobs.MessageLimit)
	}

	return out, res
}
