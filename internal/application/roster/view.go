package roster

import (
	"cmp"
	"slices"

	"github.com/go-guestlist/internal/domain"
	"github.com/go-guestlist/internal/pkg/fold"
)

// FallbackSection holds guests whose name has no foldable first character.
const FallbackSection = "Z"

// ViewState is what the list screen renders.
// Loading until the first rows arrive, then Empty or List on every recomputation.
type ViewState string

const (
	StateLoading ViewState = "loading"
	StateEmpty   ViewState = "empty"
	StateList    ViewState = "list"
)

// Section is one first-letter bucket of the filtered roster.
type Section struct {
	Key    string         `json:"key"`
	Guests []domain.Guest `json:"guests"`
}

// Snapshot is an immutable, fully derived view of one event's roster.
type Snapshot struct {
	EventID  string                     `json:"event_id"`
	State    ViewState                  `json:"state"`
	Filter   domain.GuestStatus         `json:"filter"`
	Guests   []domain.Guest             `json:"guests"`
	Sections []Section                  `json:"sections"`
	Counts   map[domain.GuestStatus]int `json:"counts"`
}

// SectionMap indexes Sections by key.
func (s *Snapshot) SectionMap() map[string][]domain.Guest {
	m := make(map[string][]domain.Guest, len(s.Sections))
	for _, sec := range s.Sections {
		m[sec.Key] = sec.Guests
	}
	return m
}

// SectionKey is the bucket a name falls into: its folded, uppercased first
// character, or FallbackSection.
func SectionKey(name string) string {
	return fold.Initial(name, FallbackSection)
}

// sortByName orders guests by name, ordinal and case-sensitive, breaking
// ties by id so the order is deterministic.
func sortByName(guests []domain.Guest) {
	slices.SortStableFunc(guests, func(a, b domain.Guest) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Sectioned groups guests, which must already be sorted, into first-letter
// sections ordered by key. Each guest appears in exactly one section.
func Sectioned(guests []domain.Guest) []Section {
	index := make(map[string]int)
	var sections []Section
	for _, g := range guests {
		key := SectionKey(g.Name)
		i, ok := index[key]
		if !ok {
			i = len(sections)
			index[key] = i
			sections = append(sections, Section{Key: key})
		}
		sections[i].Guests = append(sections[i].Guests, g)
	}
	slices.SortFunc(sections, func(a, b Section) int { return cmp.Compare(a.Key, b.Key) })
	return sections
}

// input is everything a snapshot is derived from.
type input struct {
	eventID  string
	guests   []domain.Guest
	resolved map[string]domain.University
	filter   domain.GuestStatus
	received bool
	failed   bool
}

// derive recomputes the whole view from the latest complete guest set.
// It never mutates in.guests.
func derive(in input) Snapshot {
	snap := Snapshot{
		EventID: in.eventID,
		Filter:  in.filter,
		Counts:  make(map[domain.GuestStatus]int, len(domain.GuestStatuses)),
	}
	if !in.received {
		snap.State = StateLoading
		return snap
	}

	all := make([]domain.Guest, len(in.guests))
	copy(all, in.guests)
	for i := range all {
		if u, ok := in.resolved[all[i].UniversityID]; ok {
			u := u
			all[i].University = &u
		}
		snap.Counts[all[i].Status]++
	}
	sortByName(all)
	snap.Guests = all

	var filtered []domain.Guest
	for _, g := range all {
		if g.Status == in.filter {
			filtered = append(filtered, g)
		}
	}
	snap.Sections = Sectioned(filtered)

	switch {
	case in.failed, len(filtered) == 0:
		snap.State = StateEmpty
	default:
		snap.State = StateList
	}
	return snap
}
