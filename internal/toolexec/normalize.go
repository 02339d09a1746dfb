package toolexec

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/convoke-ai/convoke/pkg/types"
)

// suggestionThreshold is the minimum Jaro-Winkler similarity for a catalogue
// name to be offered as a "did you mean" hint in a NotFound detail.
const suggestionThreshold = 0.85

// AliasTable maps known near-miss tool-name variants to their canonical
// catalogue names. Models drift on tool naming — prefixing a provider name,
// pluralising, or swapping separators — and the table absorbs the variants
// observed in production so a drifted name dispatches to the right tool
// instead of failing the turn.
//
// The table is a fixed, injected lookup: only exact alias hits rewrite a
// name. Fuzzy similarity is never used to substitute one tool for another,
// only to suggest candidates in error details.
type AliasTable map[string]string

// DefaultAliases returns the correction table for naming drift observed with
// the stock tool servers. Callers merge config-supplied entries over it.
func DefaultAliases() AliasTable {
	return AliasTable{
		"gmail_send_message": "send_email",
		"gmail_send_email":   "send_email",
		"email_send":         "send_email",
		"sendmail":           "send_email",
		"calculator":         "calculate",
		"calc":               "calculate",
		"web_search_query":   "web_search",
		"search_web":         "web_search",
	}
}

// Canonical returns the canonical name for raw: the alias target when raw is
// a known variant, otherwise raw unchanged (lower-cased, trimmed). The second
// return reports whether an alias rewrite happened.
func (t AliasTable) Canonical(raw string) (string, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := t[name]; ok {
		return canonical, true
	}
	return name, false
}

// Merge returns a new table containing the receiver's entries with overrides
// applied on top. Neither input is mutated.
func (t AliasTable) Merge(overrides AliasTable) AliasTable {
	out := make(AliasTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// suggest returns the catalogue name most similar to raw when its
// Jaro-Winkler score clears the suggestion threshold, or "" when nothing is
// close. Used only to enrich NotFound error details; never for dispatch.
func suggest(raw string, catalogue []types.ToolDefinition) string {
	names := make([]string, 0, len(catalogue))
	for _, td := range catalogue {
		names = append(names, td.Name)
	}
	sort.Strings(names)

	best := ""
	bestScore := suggestionThreshold
	for _, name := range names {
		score := matchr.JaroWinkler(raw, name, false)
		if score > bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}
