package domain

// CandidateIdentifier is an opaque reference (a content address) to one result.
type CandidateIdentifier string

// ResultSet keeps identifiers in discovery order. An identifier is never stored twice.
type ResultSet struct {
	order []CandidateIdentifier
	seen  map[CandidateIdentifier]struct{}
}

func NewResultSet() *ResultSet {
	return &ResultSet{seen: make(map[CandidateIdentifier]struct{})}
}

// Add reports whether id was new.
func (s *ResultSet) Add(id CandidateIdentifier) bool {
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// AddAll returns the number of identifiers that were new.
func (s *ResultSet) AddAll(ids []CandidateIdentifier) int {
	n := 0
	for _, id := range ids {
		if s.Add(id) {
			n++
		}
	}
	return n
}

func (s *ResultSet) Contains(id CandidateIdentifier) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *ResultSet) Len() int { return len(s.order) }

// Items returns a copy in discovery order.
func (s *ResultSet) Items() []CandidateIdentifier {
	out := make([]CandidateIdentifier, len(s.order))
	copy(out, s.order)
	return out
}
