package queue

// MaxIgnoredIDs caps the dismissed-message set; the oldest dismissals are
// forgotten first once the cap is hit.
const MaxIgnoredIDs = 512

// IgnoredIDs is the bounded set of message ids the user explicitly dismissed
// from the queue. Reconciliation consults it so a dismissed failure is never
// re-derived into a queue entry.
type IgnoredIDs struct {
	order []string
	set   map[string]bool
}

func NewIgnoredIDs(ids ...string) *IgnoredIDs {
	s := &IgnoredIDs{set: map[string]bool{}}
	for _, id := range ids {
		s.Add(id)
	}

	return s
}

func (s *IgnoredIDs) Add(id string) {
	if id == "" || s.set[id] {
		return
	}

	s.set[id] = true
	s.order = append(s.order, id)

	for len(s.order) > MaxIgnoredIDs {
		evicted := s.order[0]
		s.order = s.order[1:]
		delete(s.set, evicted)
	}
}

func (s *IgnoredIDs) Has(id string) bool {
	return s.set[id]
}

func (s *IgnoredIDs) Len() int {
	return len(s.order)
}

// IDs returns the ids oldest-first, the order they are persisted in.
func (s *IgnoredIDs) IDs() []string {
	return append([]string(nil), s.order...)
}
