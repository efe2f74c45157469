// Package fuzzy implements the prefix token matcher used to filter guests and
// users by free-text query.
package fuzzy

import (
	"slices"
	"strings"

	"github.com/go-guestlist/internal/pkg/fold"
)

// Matcher holds a parsed query. Tokens are folded and ordered longest
// first so specific tokens claim candidates before short ones, and long
// non-matches fail fast.
//
// Matching is greedy: each query token consumes the first unclaimed
// candidate token it prefixes, rather than solving a full bipartite
// matching. With longest-first ordering, a later (shorter) token that
// prefixes an already claimed candidate token also prefixes the query
// token that claimed it, so the greedy choice does not starve it.
type Matcher struct {
	tokens []string
}

// New parses a raw search string.
func New(query string) *Matcher {
	tokens := strings.Fields(fold.String(query))
	slices.SortStableFunc(tokens, func(a, b string) int {
		return len(b) - len(a)
	})
	return &Matcher{tokens: tokens}
}

// Empty reports whether the query has no tokens and therefore matches everything.
func (m *Matcher) Empty() bool {
	return len(m.tokens) == 0
}

// Matches reports whether every query token is a prefix of a distinct
// token of candidate.
func (m *Matcher) Matches(candidate string) bool {
	if len(m.tokens) == 0 {
		return true
	}
	remaining := strings.Fields(fold.String(candidate))
	for _, tok := range m.tokens {
		i := slices.IndexFunc(remaining, func(c string) bool {
			return strings.HasPrefix(c, tok)
		})
		if i < 0 {
			return false
		}
		remaining = slices.Delete(remaining, i, i+1)
	}
	return true
}

// Filter returns the items whose key matches, preserving order.
func Filter[T any](m *Matcher, items []T, key func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if m.Matches(key(it)) {
			out = append(out, it)
		}
	}
	return out
}
