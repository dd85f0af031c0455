package matrix

import (
	"github.com/ppiankov/claimdesk/internal/model"
)

// Store holds the fact matrix of one wizard session: the extracted facts, the
// detected conflicts and the resolution accepted for each conflict.
//
// Accepted versions are keyed by conflict index and survive Load, so a
// re-extraction keeps every decision the adjuster already made. Store is not
// safe for concurrent use; the owning session serializes access.
type Store struct {
	facts     []model.Fact
	conflicts []model.Conflict
	accepted  map[int]model.AcceptedVersion
	loaded    bool
}

// Snapshot is a serializable copy of a Store
type Snapshot struct {
	Facts            []model.Fact                  `json:"facts"`
	Conflicts        []model.Conflict              `json:"conflicts"`
	AcceptedVersions map[int]model.AcceptedVersion `json:"accepted_versions"`
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{accepted: make(map[int]model.AcceptedVersion)}
}

// Load replaces facts and conflicts with a fresh extraction result.
// Accepted versions are carried over untouched.
func (s *Store) Load(facts []model.Fact, conflicts []model.Conflict) {
	s.facts = append([]model.Fact(nil), facts...)
	s.conflicts = append([]model.Conflict(nil), conflicts...)
	s.loaded = true
}

// Loaded reports whether an extraction result has been loaded.
func (s *Store) Loaded() bool {
	return s.loaded
}

// HasAtLeastOneFact reports whether the matrix holds any fact.
func (s *Store) HasAtLeastOneFact() bool {
	return len(s.facts) > 0
}

// Facts returns a copy of the facts.
func (s *Store) Facts() []model.Fact {
	return append([]model.Fact(nil), s.facts...)
}

// Conflicts returns a copy of the conflicts.
func (s *Store) Conflicts() []model.Conflict {
	return append([]model.Conflict(nil), s.conflicts...)
}

// Conflict returns the conflict at index i.
func (s *Store) Conflict(i int) (model.Conflict, bool) {
	if i < 0 || i >= len(s.conflicts) {
		return model.Conflict{}, false
	}
	return s.conflicts[i], true
}

// Accepted returns a copy of the accepted versions.
func (s *Store) Accepted() map[int]model.AcceptedVersion {
	out := make(map[int]model.AcceptedVersion, len(s.accepted))
	for k, v := range s.accepted {
		out[k] = v
	}
	return out
}

// AcceptedVersion returns the resolution stored for conflict i.
func (s *Store) AcceptedVersion(i int) (model.AcceptedVersion, bool) {
	v, ok := s.accepted[i]
	return v, ok
}

// Snapshot copies the store for serialization.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Facts:            s.Facts(),
		Conflicts:        s.Conflicts(),
		AcceptedVersions: s.Accepted(),
	}
}

func (s *Store) setAccepted(i int, v model.AcceptedVersion) {
	s.accepted[i] = v
}

func (s *Store) setFact(i int, f model.Fact) {
	s.facts[i] = f
}
