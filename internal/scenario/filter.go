package scenario

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"firestige.xyz/uoaprobe/internal/core"
)

// Filter keeps scenarios whose name matches pattern. Patterns with wildcards
// are globs; anything else matches as a substring. An empty pattern keeps all.
func Filter(scenarios []Scenario, pattern string) ([]Scenario, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return scenarios, nil
	}

	match := func(name string) bool { return strings.Contains(name, pattern) }
	if strings.ContainsAny(pattern, "*?[{") {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: %v", core.ErrConfigInvalid, pattern, err)
		}
		match = g.Match
	}

	var out []Scenario
	for _, s := range scenarios {
		if match(s.Name) {
			out = append(out, s)
		}
	}
	return out, nil
}
