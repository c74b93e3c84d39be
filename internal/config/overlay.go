package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TacticsFile holds the site-specific strings that break whenever the upstream
// markup changes. Every section is optional.
type TacticsFile struct {
	Gateway struct {
		OverallTimeout time.Duration `yaml:"overall_timeout"`
		Markers        Markers       `yaml:"markers"`
		Tactics        []TacticSpec  `yaml:"tactics"`
	} `yaml:"gateway"`

	Harvest struct {
		ContainerLocators   []string `yaml:"container_locators"`
		NoResultsMarkers    []string `yaml:"no_results_markers"`
		EndSelectors        []string `yaml:"end_selectors"`
		EndTexts            []string `yaml:"end_texts"`
		StructuralSelectors []string `yaml:"structural_selectors"`
		AttributeMarkers    []string `yaml:"attribute_markers"`
		IdentifierPattern   string   `yaml:"identifier_pattern"`
	} `yaml:"harvest"`

	Extract struct {
		Root   []string             `yaml:"root"`
		Fields map[string]FieldSpec `yaml:"fields"`
	} `yaml:"extract"`
}

// OverlayTactics replaces the matching parts of cfg with whatever tacticsPath sets.
func OverlayTactics(cfg *Config, tacticsPath string) error {
	b, err := os.ReadFile(tacticsPath)
	if err != nil {
		// Missing tactics file should not kill startup
		return nil
	}

	var tf TacticsFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return err
	}

	if tf.Gateway.OverallTimeout > 0 {
		cfg.Gateway.OverallTimeout = tf.Gateway.OverallTimeout
	}
	setList(&cfg.Gateway.Markers.Location, tf.Gateway.Markers.Location)
	setList(&cfg.Gateway.Markers.Title, tf.Gateway.Markers.Title)
	if len(tf.Gateway.Tactics) > 0 {
		cfg.Gateway.Tactics = tf.Gateway.Tactics
	}

	h := tf.Harvest
	setList(&cfg.Harvest.ContainerLocators, h.ContainerLocators)
	setList(&cfg.Harvest.NoResultsMarkers, h.NoResultsMarkers)
	setList(&cfg.Harvest.EndSelectors, h.EndSelectors)
	setList(&cfg.Harvest.EndTexts, h.EndTexts)
	setList(&cfg.Harvest.StructuralSelectors, h.StructuralSelectors)
	setList(&cfg.Harvest.AttributeMarkers, h.AttributeMarkers)
	if h.IdentifierPattern != "" {
		cfg.Harvest.IdentifierPattern = h.IdentifierPattern
	}

	setList(&cfg.Extract.Root, tf.Extract.Root)
	if len(tf.Extract.Fields) > 0 {
		if cfg.Extract.Fields == nil {
			cfg.Extract.Fields = map[string]FieldSpec{}
		}
		for name, spec := range tf.Extract.Fields {
			cfg.Extract.Fields[name] = spec
		}
	}
	return nil
}

func setList(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
