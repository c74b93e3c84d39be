package domain

import (
	"fmt"
	"strings"
)

type OutputFormat string

const (
	FormatExcel OutputFormat = "excel"
	FormatCSV   OutputFormat = "csv"
	FormatJSON  OutputFormat = "json"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "excel", "xlsx":
		return FormatExcel, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Ext is the file extension written for the format.
func (f OutputFormat) Ext() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	default:
		return "xlsx"
	}
}

// SearchJob is created once per invocation and never modified afterwards.
type SearchJob struct {
	Query        string       `json:"query"`
	OutputFormat OutputFormat `json:"output_format"`
	Headless     bool         `json:"headless"`
}

// NewSearchJob fills an empty format with def.
func NewSearchJob(query string, format OutputFormat, headless bool, def OutputFormat) (SearchJob, error) {
	q := strings.Join(strings.Fields(query), " ")
	if q == "" {
		return SearchJob{}, fmt.Errorf("search query is empty")
	}
	if format == "" {
		format = def
	}
	if format == "" {
		format = FormatExcel
	}
	return SearchJob{Query: q, OutputFormat: format, Headless: headless}, nil
}
