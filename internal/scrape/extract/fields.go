package extract

import (
	"fmt"
	"sort"

	"github.com/PuerkitoBio/goquery"

	"mapsharvest-engine/internal/config"
	"mapsharvest-engine/internal/domain"
	"mapsharvest-engine/internal/scrape/util"
)

// Field extracts one record field from the rendered detail panel.
type Field struct {
	Name    string
	Extract func(root *goquery.Selection) (string, error)
}

type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

var setters = map[string]func(*domain.BusinessRecord, *string){
	"category":        func(r *domain.BusinessRecord, v *string) { r.Category = v },
	"name":            func(r *domain.BusinessRecord, v *string) { r.Name = v },
	"phone":           func(r *domain.BusinessRecord, v *string) { r.Phone = v },
	"address":         func(r *domain.BusinessRecord, v *string) { r.Address = v },
	"website":         func(r *domain.BusinessRecord, v *string) { r.Website = v },
	"booking_link":    func(r *domain.BusinessRecord, v *string) { r.BookingLink = v },
	"business_status": func(r *domain.BusinessRecord, v *string) { r.BusinessStatus = v },
	"total_reviews":   func(r *domain.BusinessRecord, v *string) { r.TotalReviews = v },
	"rating":          func(r *domain.BusinessRecord, v *string) { r.Rating = v },
	"hours":           func(r *domain.BusinessRecord, v *string) { r.Hours = v },
}

var fieldOrder = []string{
	"name", "category", "address", "phone", "website",
	"booking_link", "business_status", "total_reviews", "rating", "hours",
}

// SpecField builds a Field that walks spec's selectors in order.
func SpecField(name string, spec config.FieldSpec) Field {
	return Field{Name: name, Extract: func(root *goquery.Selection) (string, error) {
		var raw string
		if spec.Attr != "" {
			raw = util.FirstAttr(root, spec.Selectors, spec.Attr)
		} else {
			raw = util.FirstText(root, spec.Selectors)
		}
		return util.TrimAffixes(raw, spec.TrimPrefix, spec.TrimSuffix), nil
	}}
}

// FieldsFromConfig returns fields in a stable order. Names with no record slot are rejected.
func FieldsFromConfig(specs map[string]config.FieldSpec) ([]Field, error) {
	var out []Field
	seen := map[string]bool{}
	for _, name := range fieldOrder {
		if sp, ok := specs[name]; ok {
			out = append(out, SpecField(name, sp))
			seen[name] = true
		}
	}
	var unknown []string
	for name := range specs {
		if !seen[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return out, fmt.Errorf("extract: no record field for %v", unknown)
	}
	return out, nil
}

// ExtractRecord runs every field independently; a failing field stays nil.
func ExtractRecord(root *goquery.Selection, fields []Field) (domain.BusinessRecord, []FieldError) {
	var rec domain.BusinessRecord
	var errs []FieldError
	for _, f := range fields {
		v, err := safeExtract(f, root)
		if err != nil {
			errs = append(errs, FieldError{Field: f.Name, Err: err})
			continue
		}
		if set, ok := setters[f.Name]; ok {
			set(&rec, domain.Str(v))
		}
	}
	return rec, errs
}

func safeExtract(f Field, root *goquery.Selection) (v string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f.Extract(root)
}
