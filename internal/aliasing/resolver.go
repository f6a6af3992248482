package aliasing

import (
	"log/slog"
	"strings"
)

// builtinAliases are always available; file-loaded aliases are layered on
// top and win on conflict.
var builtinAliases = map[string]string{
	"albert-heijn":       "ah",
	"albertheijn":        "ah",
	"appie":              "ah",
	"jumbo-supermarkten": "jumbo",
	"aldi-nord":          "aldi",
	"aldi-nl":            "aldi",
	"plus-supermarkt":    "plus",
	"plus-retail":        "plus",
	"kruidvat-nl":        "kruidvat",
}

// Resolver maps external shop names to canonical shop types. Immutable after
// construction, safe for concurrent use.
type Resolver struct {
	aliases map[string]string
}

// NewResolver builds a resolver from the built-in aliases plus the config.
// Entries with an empty alias or target are skipped with a warning. A nil
// config yields the built-in table only.
func NewResolver(cfg *Config) *Resolver {
	aliases := make(map[string]string, len(builtinAliases))

	for alias, canonical := range builtinAliases {
		aliases[alias] = canonical
	}

	if cfg != nil {
		for alias, canonical := range cfg.ShopAliases {
			alias = normalize(alias)
			canonical = normalize(canonical)

			if alias == "" || canonical == "" {
				slog.Warn("Skipping shop alias with empty side",
					slog.String("alias", alias),
					slog.String("canonical", canonical))

				continue
			}

			aliases[alias] = canonical
		}
	}

	return &Resolver{aliases: aliases}
}

// AliasCount returns the number of aliases the resolver knows.
func (r *Resolver) AliasCount() int {
	if r == nil {
		return 0
	}

	return len(r.aliases)
}

// Resolve maps a shop name to its canonical shop type. Names are normalized
// (trimmed, lowercased, spaces and underscores folded to hyphens) before
// lookup; unknown names come back normalized but otherwise unchanged, so
// canonical shop types pass through.
func (r *Resolver) Resolve(name string) string {
	normalized := normalize(name)
	if r == nil || normalized == "" {
		return normalized
	}

	if canonical, ok := r.aliases[normalized]; ok {
		return canonical
	}

	return normalized
}

// Match reports whether the name is a known alias and what it maps to.
func (r *Resolver) Match(name string) (string, bool) {
	normalized := normalize(name)
	if r == nil || normalized == "" {
		return "", false
	}

	canonical, ok := r.aliases[normalized]

	return canonical, ok
}

// normalize folds a shop name to lookup form.
func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "_", "-")

	return name
}
