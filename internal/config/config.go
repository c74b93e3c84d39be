package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Locator finds one element. By is "css" or "xpath".
type Locator struct {
	By   string `yaml:"by" json:"by"`
	Expr string `yaml:"expr" json:"expr"`
}

// TacticSpec is one row of the gateway tactic table.
type TacticSpec struct {
	Kind        string        `yaml:"kind" json:"kind"` // alternate_address | acknowledge
	Name        string        `yaml:"name,omitempty" json:"name,omitempty"`
	Template    string        `yaml:"template,omitempty" json:"template,omitempty"`
	Locators    []Locator     `yaml:"locators,omitempty" json:"locators,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	Settle      time.Duration `yaml:"settle" json:"settle"`
	LocatorWait time.Duration `yaml:"locator_wait,omitempty" json:"locator_wait,omitempty"`
}

type Markers struct {
	Location []string `yaml:"location" json:"location"`
	Title    []string `yaml:"title" json:"title"`
}

type Gateway struct {
	OverallTimeout time.Duration `yaml:"overall_timeout" json:"overall_timeout"`
	Markers        Markers       `yaml:"markers" json:"markers"`
	Tactics        []TacticSpec  `yaml:"tactics" json:"tactics"`
}

// Tier applies Tolerance while the result count is below Below.
type Tier struct {
	Below     int `yaml:"below" json:"below"`
	Tolerance int `yaml:"tolerance" json:"tolerance"`
}

type Harvest struct {
	ContainerLocators   []string      `yaml:"container_locators" json:"container_locators"`
	NoResultsMarkers    []string      `yaml:"no_results_markers" json:"no_results_markers"`
	EndSelectors        []string      `yaml:"end_selectors" json:"end_selectors"`
	EndTexts            []string      `yaml:"end_texts" json:"end_texts"`
	StructuralSelectors []string      `yaml:"structural_selectors" json:"structural_selectors"`
	AttributeMarkers    []string      `yaml:"attribute_markers" json:"attribute_markers"`
	IdentifierPattern   string        `yaml:"identifier_pattern" json:"identifier_pattern"`
	ContainerWait       time.Duration `yaml:"container_wait" json:"container_wait"`
	PollInterval        time.Duration `yaml:"poll_interval" json:"poll_interval"`
	ScrollStep          int           `yaml:"scroll_step" json:"scroll_step"`
	ScrollSettle        time.Duration `yaml:"scroll_settle" json:"scroll_settle"`
	AggressiveSteps     int           `yaml:"aggressive_steps" json:"aggressive_steps"`
	AggressiveSettle    time.Duration `yaml:"aggressive_settle" json:"aggressive_settle"`
	StuckAfter          int           `yaml:"stuck_after" json:"stuck_after"`
	StuckBelow          int           `yaml:"stuck_below" json:"stuck_below"`
	Tiers               []Tier        `yaml:"tiers" json:"tiers"`
	DefaultTolerance    int           `yaml:"default_tolerance" json:"default_tolerance"`
	MaxIterations       int           `yaml:"max_iterations" json:"max_iterations"`
}

// FieldSpec lists fallback selectors for one record field. With Attr set the
// attribute value is read instead of the element text.
type FieldSpec struct {
	Selectors  []string `yaml:"selectors" json:"selectors"`
	Attr       string   `yaml:"attr,omitempty" json:"attr,omitempty"`
	TrimPrefix []string `yaml:"trim_prefix,omitempty" json:"trim_prefix,omitempty"`
	TrimSuffix []string `yaml:"trim_suffix,omitempty" json:"trim_suffix,omitempty"`
}

type Extract struct {
	Root       []string             `yaml:"root" json:"root"`
	Settle     time.Duration        `yaml:"settle" json:"settle"`
	NavTimeout time.Duration        `yaml:"nav_timeout" json:"nav_timeout"`
	Fields     map[string]FieldSpec `yaml:"fields" json:"fields"`
}

type Enrich struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	ContactSuffixes   []string      `yaml:"contact_suffixes" json:"contact_suffixes"`
	MaxEmails         int           `yaml:"max_emails" json:"max_emails"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	ExcludeSuffixes   []string      `yaml:"exclude_suffixes" json:"exclude_suffixes"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	VerifyMX          bool          `yaml:"verify_mx" json:"verify_mx"`
	DNSServer         string        `yaml:"dns_server" json:"dns_server"`
	CacheTTL          time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

type Browser struct {
	Headless      bool          `yaml:"headless" json:"headless"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	WindowWidth   int           `yaml:"window_width" json:"window_width"`
	WindowHeight  int           `yaml:"window_height" json:"window_height"`
	DisableImages bool          `yaml:"disable_images" json:"disable_images"`
	ExecPath      string        `yaml:"exec_path,omitempty" json:"exec_path,omitempty"`
	StartTimeout  time.Duration `yaml:"start_timeout" json:"start_timeout"`
	NavTimeout    time.Duration `yaml:"nav_timeout" json:"nav_timeout"`
}

type Search struct {
	URLTemplate   string   `yaml:"url_template" json:"url_template"`
	NearMeSuffix  string   `yaml:"near_me_suffix" json:"near_me_suffix"`
	LocationHints []string `yaml:"location_hints" json:"location_hints"`
}

type Output struct {
	Dir           string `yaml:"dir" json:"dir"`
	DefaultFormat string `yaml:"default_format" json:"default_format"`
}

type Storage struct {
	SQLite                 bool   `yaml:"sqlite" json:"sqlite"`
	DBName                 string `yaml:"db_name" json:"db_name"`
	PostgresDSN            string `yaml:"postgres_dsn" json:"postgres_dsn"`
	PostgresKeyringAccount string `yaml:"postgres_keyring_account" json:"postgres_keyring_account"`

	// HistoryRetention is how long finished runs stay in the history db.
	HistoryRetention time.Duration `yaml:"history_retention" json:"history_retention"`
}

type Jobs struct {
	MessageLimit int           `yaml:"message_limit" json:"message_limit"`
	Retention    time.Duration `yaml:"retention" json:"retention"`
	PruneEvery   time.Duration `yaml:"prune_every" json:"prune_every"`
	// ShutdownGrace is how long a running job gets to stop on its own
	// before the engine aborts it.
	ShutdownGrace time.Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
}

type App struct {
	Port      int    `yaml:"port" json:"port"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`
}

type Config struct {
	App     App     `yaml:"app" json:"app"`
	Browser Browser `yaml:"browser" json:"browser"`
	Search  Search  `yaml:"search" json:"search"`
	Gateway Gateway `yaml:"gateway" json:"gateway"`
	Harvest Harvest `yaml:"harvest" json:"harvest"`
	Extract Extract `yaml:"extract" json:"extract"`
	Enrich  Enrich  `yaml:"enrich" json:"enrich"`
	Output  Output  `yaml:"output" json:"output"`
	Storage Storage `yaml:"storage" json:"storage"`
	Jobs    Jobs    `yaml:"jobs" json:"jobs"`
}

// Load reads path on top of Default(), so keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
