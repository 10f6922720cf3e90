// Package render turns message keys into localized chat text and converts
// organizer Markdown into Telegram MarkdownV2.
package render

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFiles embed.FS

// KeyErrorGeneric is the last-resort message of every lookup.
const KeyErrorGeneric = "error_generic"

// fallbackText is used only if the default catalog lacks KeyErrorGeneric,
// which Load rejects.
const fallbackText = "Something went wrong."

// Vars are placeholder values substituted into {name} slots.
type Vars map[string]any

// Catalog holds parsed message catalogs keyed by locale. It is immutable
// after Load and safe for concurrent use.
type Catalog struct {
	defaultLocale string
	messages      map[string]map[string]string
}

// Load parses the embedded catalogs. defaultLocale must be one of them.
func Load(defaultLocale string) (*Catalog, error) {
	entries, err := localeFiles.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	messages := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}

		raw, err := localeFiles.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}

		var catalog map[string]string
		if err := yaml.Unmarshal(raw, &catalog); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", name, err)
		}
		messages[normalizeLocale(strings.TrimSuffix(name, ".yaml"))] = catalog
	}

	return newCatalog(defaultLocale, messages)
}

func newCatalog(defaultLocale string, messages map[string]map[string]string) (*Catalog, error) {
	locale := normalizeLocale(defaultLocale)
	base, ok := messages[locale]
	if !ok {
		return nil, fmt.Errorf("default locale %q has no catalog", defaultLocale)
	}
	if _, ok := base[KeyErrorGeneric]; !ok {
		return nil, errors.New("default catalog must define " + KeyErrorGeneric)
	}

	return &Catalog{defaultLocale: locale, messages: messages}, nil
}

// DefaultLocale returns the normalized default locale.
func (c *Catalog) DefaultLocale() string {
	return c.defaultLocale
}

// Locales lists the loaded locales in sorted order.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.messages))
	for locale := range c.messages {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

// Keys lists the keys defined for locale in sorted order.
func (c *Catalog) Keys(locale string) []string {
	catalog := c.messages[normalizeLocale(locale)]
	out := make([]string, 0, len(catalog))
	for key := range catalog {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Render looks key up for locale and fills its placeholders. The lookup
// falls back from the exact locale to its base language, then to the
// default locale, then to the default locale's generic error text. A raw
// key is never returned.
func (c *Catalog) Render(locale, key string, vars Vars) string {
	template, ok := c.lookup(locale, key)
	if !ok {
		return c.generic()
	}
	return fill(template, vars)
}

func (c *Catalog) lookup(locale, key string) (string, bool) {
	for _, candidate := range c.chain(locale) {
		if text, ok := c.messages[candidate][key]; ok {
			return text, true
		}
	}
	return "", false
}

func (c *Catalog) chain(locale string) []string {
	normalized := normalizeLocale(locale)
	chain := make([]string, 0, 3)
	if normalized != "" {
		chain = append(chain, normalized)
		if base, _, found := strings.Cut(normalized, "-"); found {
			chain = append(chain, base)
		}
	}
	return append(chain, c.defaultLocale)
}

func (c *Catalog) generic() string {
	if text, ok := c.messages[c.defaultLocale][KeyErrorGeneric]; ok {
		return text
	}
	return fallbackText
}

func fill(template string, vars Vars) string {
	if len(vars) == 0 {
		return template
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", fmt.Sprint(value))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func normalizeLocale(locale string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(locale)), "_", "-")
}
