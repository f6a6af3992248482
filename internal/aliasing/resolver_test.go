package aliasing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolverBuiltinAliases(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"albert heijn hyphenated", "albert-heijn", "ah"},
		{"albert heijn joined", "albertheijn", "ah"},
		{"jumbo long form", "jumbo-supermarkten", "jumbo"},
		{"aldi regional", "aldi-nord", "aldi"},
		{"plus long form", "plus-supermarkt", "plus"},
		{"kruidvat regional", "kruidvat-nl", "kruidvat"},
		{"canonical passes through", "ah", "ah"},
		{"unknown passes through", "lidl", "lidl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Resolve(tt.input))
		})
	}
}

func TestResolverNormalization(t *testing.T) {
	r := NewResolver(nil)

	assert.Equal(t, "ah", r.Resolve("  Albert-Heijn  "))
	assert.Equal(t, "ah", r.Resolve("ALBERT_HEIJN"))
	assert.Equal(t, "ah", r.Resolve("albert heijn"))
	assert.Equal(t, "jumbo", r.Resolve("Jumbo Supermarkten"))
	assert.Equal(t, "", r.Resolve("   "))
}

func TestResolverConfigOverridesBuiltin(t *testing.T) {
	r := NewResolver(&Config{ShopAliases: map[string]string{
		"appie":     "jumbo",
		"Hoogvliet": "PLUS",
	}})

	// File entries win over built-ins and are normalized on both sides.
	assert.Equal(t, "jumbo", r.Resolve("appie"))
	assert.Equal(t, "plus", r.Resolve("hoogvliet"))
	assert.Equal(t, "ah", r.Resolve("albert-heijn"))
}

func TestResolverSkipsEmptyEntries(t *testing.T) {
	r := NewResolver(&Config{ShopAliases: map[string]string{
		"":      "ah",
		"blank": "  ",
		"ok":    "jumbo",
	}})

	assert.Equal(t, len(builtinAliases)+1, r.AliasCount())
	assert.Equal(t, "jumbo", r.Resolve("ok"))
	assert.Equal(t, "blank", r.Resolve("blank"))
}

func TestResolverMatch(t *testing.T) {
	r := NewResolver(nil)

	canonical, ok := r.Match("albert-heijn")
	assert.True(t, ok)
	assert.Equal(t, "ah", canonical)

	_, ok = r.Match("lidl")
	assert.False(t, ok)

	_, ok = r.Match("")
	assert.False(t, ok)
}

func TestResolverNilSafe(t *testing.T) {
	var r *Resolver

	assert.Equal(t, "ah", r.Resolve("ah"))
	assert.Equal(t, 0, r.AliasCount())

	_, ok := r.Match("ah")
	assert.False(t, ok)
}

func TestResolverConcurrentUse(t *testing.T) {
	r := NewResolver(&Config{ShopAliases: map[string]string{"spar-city": "spar"}})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				assert.Equal(t, "ah", r.Resolve("albert-heijn"))
				assert.Equal(t, "spar", r.Resolve("spar-city"))
			}
		}()
	}

	wg.Wait()
}
