package matrix

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/claimdesk/internal/model"
)

// ErrConflictNotFound is returned when a conflict index is out of range.
var ErrConflictNotFound = errors.New("conflict not found")

// SnippetPolicy controls when a fact's source text counts as quoting a
// snippet of the accepted variant. A snippet overlaps when it is longer than
// MinLength and its first PrefixLength characters appear in the source text.
type SnippetPolicy struct {
	MinLength    int
	PrefixLength int
}

// DefaultSnippetPolicy returns the 20/50 character policy.
func DefaultSnippetPolicy() SnippetPolicy {
	return SnippetPolicy{MinLength: 20, PrefixLength: 50}
}

// Options configures a Resolver
type Options struct {
	Matcher  Matcher
	Snippets SnippetPolicy
	Now      func() time.Time
}

// ConflictMatch links a fact to the conflict it belongs to
type ConflictMatch struct {
	Index    int
	Conflict model.Conflict
	Resolved bool
}

// AcceptResult describes what an accepted resolution changed
type AcceptResult struct {
	ConflictIndex int                   `json:"conflict_index"`
	Accepted      model.AcceptedVersion `json:"accepted"`
	UpdatedFacts  []int                 `json:"updated_facts"` // indexes of facts rewritten by propagation
	ResolvedAll   bool                  `json:"resolved_all"`  // the accept flipped AllResolved from false to true
}

// Resolver matches facts to conflicts and applies accepted resolutions to a
// Store.
type Resolver struct {
	store    *Store
	matcher  Matcher
	snippets SnippetPolicy
	now      func() time.Time
}

// NewResolver creates a resolver over store. Zero options fall back to
// substring matching, the default snippet policy and the wall clock.
func NewResolver(store *Store, opts Options) *Resolver {
	if opts.Matcher == nil {
		opts.Matcher = SubstringMatcher{}
	}
	if opts.Snippets.MinLength <= 0 {
		opts.Snippets.MinLength = DefaultSnippetPolicy().MinLength
	}
	if opts.Snippets.PrefixLength <= 0 {
		opts.Snippets.PrefixLength = DefaultSnippetPolicy().PrefixLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{
		store:    store,
		matcher:  opts.Matcher,
		snippets: opts.Snippets,
		now:      opts.Now,
	}
}

// FindConflictForFact returns the first conflict, in list order, that fact
// belongs to. The fact's source must be implicated in the conflict and its
// value must match a conflicting value, or a value detail backed by the same
// source.
func (r *Resolver) FindConflictForFact(fact model.Fact) (ConflictMatch, bool) {
	value := fact.Value()
	for i, c := range r.store.conflicts {
		if !c.HasSource(fact.Source) {
			continue
		}
		if r.matchesAny(value, c.ConflictingValues) || r.matchesDetail(fact.Source, value, c.ValueDetails) {
			return ConflictMatch{Index: i, Conflict: c, Resolved: r.IsResolved(i)}, true
		}
	}
	return ConflictMatch{}, false
}

// IsResolved reports whether conflict i has an accepted version.
func (r *Resolver) IsResolved(i int) bool {
	_, ok := r.store.accepted[i]
	return ok
}

// AllResolved reports whether every conflict in the store is resolved.
func (r *Resolver) AllResolved() bool {
	return AllResolved(r.store.conflicts, r.store.accepted)
}

// AllResolved is true when there are no conflicts, or when every index
// 0..len(conflicts)-1 has an accepted version.
func AllResolved(conflicts []model.Conflict, accepted map[int]model.AcceptedVersion) bool {
	for i := range conflicts {
		if _, ok := accepted[i]; !ok {
			return false
		}
	}
	return true
}

// Unresolved lists the indexes of conflicts still waiting for a decision.
func (r *Resolver) Unresolved() []int {
	var out []int
	for i := range r.store.conflicts {
		if !r.IsResolved(i) {
			out = append(out, i)
		}
	}
	return out
}

// Accept records value as the resolution of conflict i and rewrites the
// facts it contradicts. The accepted version and the fact updates are applied
// together; a reader never sees one without the other.
func (r *Resolver) Accept(i, variantIndex int, value string) (AcceptResult, error) {
	conflict, ok := r.store.Conflict(i)
	if !ok {
		return AcceptResult{}, ErrConflictNotFound
	}

	wasResolved := r.AllResolved()
	now := r.now()

	accepted := model.AcceptedVersion{
		Value:        value,
		VariantIndex: variantIndex,
		Timestamp:    now,
	}
	r.store.setAccepted(i, accepted)
	updated := r.propagate(conflict, value, now)

	return AcceptResult{
		ConflictIndex: i,
		Accepted:      accepted,
		UpdatedFacts:  updated,
		ResolvedAll:   !wasResolved && r.AllResolved(),
	}, nil
}

// ReapplyAccepted re-runs propagation for every carried-over resolution whose
// conflict still exists. Used after a re-extraction replaced the facts.
// Accepted versions themselves are not modified.
func (r *Resolver) ReapplyAccepted() []int {
	indexes := make([]int, 0, len(r.store.accepted))
	for i := range r.store.accepted {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var updated []int
	for _, i := range indexes {
		conflict, ok := r.store.Conflict(i)
		if !ok {
			continue
		}
		v := r.store.accepted[i]
		updated = append(updated, r.propagate(conflict, v.Value, v.Timestamp)...)
	}
	return updated
}

// propagate rewrites facts from the conflict's sources that still carry a
// contradicted value. Facts outside those sources, and facts already equal to
// the accepted value, are never touched.
func (r *Resolver) propagate(conflict model.Conflict, value string, at time.Time) []int {
	detail, _ := conflict.Detail(value)
	candidates := conflict.CandidateValues()
	acceptedKey := model.Fold(value)

	var updated []int
	for idx, fact := range r.store.facts {
		if !conflict.HasSource(fact.Source) {
			continue
		}
		current := fact.Value()
		if model.Fold(current) == acceptedKey {
			continue
		}

		snippetMatch := r.overlapsSnippet(fact.SourceText, detail.SourceSnippets)
		if detail.HasSource(fact.Source) && !snippetMatch {
			continue
		}
		if !snippetMatch && !r.matchesAny(current, candidates) {
			continue
		}

		fact.NormalizedValue = value
		fact.ExtractedFact = replaceValues(fact.ExtractedFact, candidates, value)
		fact.Resolved = true
		fact.ResolvedValue = value
		ts := at
		fact.ResolvedTimestamp = &ts
		r.store.setFact(idx, fact)
		updated = append(updated, idx)
	}
	return updated
}

func (r *Resolver) matchesAny(value string, candidates []string) bool {
	for _, c := range candidates {
		if r.matcher.Match(value, c) {
			return true
		}
	}
	return false
}

func (r *Resolver) matchesDetail(source, value string, details []model.ValueDetail) bool {
	for _, d := range details {
		if d.HasSource(source) && r.matcher.Match(value, d.Value) {
			return true
		}
	}
	return false
}

func (r *Resolver) overlapsSnippet(sourceText string, snippets []string) bool {
	if sourceText == "" {
		return false
	}
	text := strings.ToLower(sourceText)
	for _, s := range snippets {
		runes := []rune(strings.ToLower(s))
		if len(runes) <= r.snippets.MinLength {
			continue
		}
		n := r.snippets.PrefixLength
		if n > len(runes) {
			n = len(runes)
		}
		if strings.Contains(text, string(runes[:n])) {
			return true
		}
	}
	return false
}

// replaceValues swaps every occurrence of a contradicted value in text for
// value, case-insensitively. Text mentioning none of them is returned as is.
// Candidates contained in the accepted value are skipped so "3:00" never
// turns "3:00 PM" into "3:00 PM PM".
func replaceValues(text string, candidates []string, value string) string {
	if text == "" {
		return text
	}
	lower := strings.ToLower(text)
	acceptedKey := model.Fold(value)

	var targets []string
	for _, c := range candidates {
		k := model.Fold(c)
		if k == "" || strings.Contains(acceptedKey, k) {
			continue
		}
		if strings.Contains(lower, k) {
			targets = append(targets, strings.TrimSpace(c))
		}
	}
	if len(targets) == 0 {
		return text
	}

	// Longest first so "3:30 PM" wins over "3:30".
	sort.SliceStable(targets, func(i, j int) bool { return len(targets[i]) > len(targets[j]) })
	for _, t := range targets {
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(t))
		text = re.ReplaceAllLiteralString(text, value)
	}
	return text
}
