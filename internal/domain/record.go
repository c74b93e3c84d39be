package domain

// BusinessRecord is one harvested listing. A nil field means it could not be extracted.
type BusinessRecord struct {
	Category       *string `json:"category"`
	Name           *string `json:"name"`
	Phone          *string `json:"phone"`
	Address        *string `json:"address"`
	Website        *string `json:"website"`
	Email          *string `json:"email"`
	BookingLink    *string `json:"booking_link"`
	BusinessStatus *string `json:"business_status"`
	TotalReviews   *string `json:"total_reviews"`
	Rating         *string `json:"rating"`
	Hours          *string `json:"hours"`
	SourceAddress  *string `json:"source_address"`
}

// Columns is the export header order.
var Columns = []string{
	"Category",
	"Name",
	"Phone",
	"Google Maps URL",
	"Website",
	"email",
	"Business Status",
	"Address",
	"Total Reviews",
	"Booking Links",
	"Rating",
	"Hours",
}

// Row returns the record's values in Columns order, nil fields as "".
func (r BusinessRecord) Row() []string {
	return []string{
		deref(r.Category),
		deref(r.Name),
		deref(r.Phone),
		deref(r.SourceAddress),
		deref(r.Website),
		deref(r.Email),
		deref(r.BusinessStatus),
		deref(r.Address),
		deref(r.TotalReviews),
		deref(r.BookingLink),
		deref(r.Rating),
		deref(r.Hours),
	}
}

// Str returns a pointer to s, or nil when s is empty.
func Str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
