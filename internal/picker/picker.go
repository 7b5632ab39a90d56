// Package picker resolves loose user input — a class name fragment, a
// partial method signature — against the candidates actually present in a
// DEX, ranking with fuzzy matching and falling back to an interactive
// selector when the choice is ambiguous.
package picker

import (
	"fmt"

	"github.com/sahilm/fuzzy"

	"github.com/aetherlink/dexedit/internal/ui"
)

// Rank orders candidates by fuzzy relevance to query, best first.
// An empty query returns the candidates unchanged.
func Rank(query string, candidates []string) []string {
	if query == "" {
		return candidates
	}
	matches := fuzzy.Find(query, candidates)
	ranked := make([]string, len(matches))
	for i, m := range matches {
		ranked[i] = m.Str
	}
	return ranked
}

// Pick resolves query to exactly one candidate. An exact match wins
// outright; a single fuzzy match is taken; for several matches the user
// is asked when interactive, otherwise the best-ranked candidate wins.
func Pick(title, query string, candidates []string, interactive bool) (string, error) {
	for _, c := range candidates {
		if c == query {
			return c, nil
		}
	}

	ranked := Rank(query, candidates)
	switch {
	case len(ranked) == 0:
		return "", fmt.Errorf("picker: nothing matches %q", query)
	case len(ranked) == 1:
		return ranked[0], nil
	}

	if interactive && ui.IsTerminal() {
		// Cap the list; fuzzy order puts the plausible ones on top.
		show := ranked
		if len(show) > 9 {
			show = show[:9]
		}
		idx, err := ui.Select(title, show)
		if err != nil {
			return "", err
		}
		if idx < 0 {
			return "", fmt.Errorf("picker: selection aborted")
		}
		return show[idx], nil
	}
	return ranked[0], nil
}
