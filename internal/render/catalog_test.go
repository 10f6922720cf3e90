package render

import (
	"strings"
	"testing"
)

func TestLoadBundledCatalogs(t *testing.T) {
	catalog, err := Load("EN")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	locales := catalog.Locales()
	if strings.Join(locales, ",") != "en,ru" {
		t.Fatalf("expected en and ru catalogs, got %v", locales)
	}
	if catalog.DefaultLocale() != "en" {
		t.Fatalf("expected normalized default locale, got %s", catalog.DefaultLocale())
	}
}

func TestCatalogsDefineTheSameKeys(t *testing.T) {
	catalog, err := Load("en")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	want := strings.Join(catalog.Keys("en"), "\n")
	for _, locale := range catalog.Locales() {
		if got := strings.Join(catalog.Keys(locale), "\n"); got != want {
			t.Fatalf("locale %s keys differ from en", locale)
		}
	}
}

func TestLoadRejectsUnknownDefault(t *testing.T) {
	if _, err := Load("de"); err == nil {
		t.Fatalf("expected error for missing default catalog")
	}

	_, err := newCatalog("en", map[string]map[string]string{"en": {"greeting": "hi"}})
	if err == nil {
		t.Fatalf("expected error when default catalog has no generic error")
	}
}

func TestRenderFallbackChain(t *testing.T) {
	catalog, err := newCatalog("en", map[string]map[string]string{
		"en":    {"greeting": "Hello {name}", "only_en": "english", KeyErrorGeneric: "oops"},
		"ru":    {"greeting": "Привет {name}"},
		"pt-br": {"greeting": "Olá {name}"},
	})
	if err != nil {
		t.Fatalf("newCatalog returned error: %v", err)
	}

	tests := []struct {
		name   string
		locale string
		key    string
		want   string
	}{
		{name: "exact locale", locale: "ru", key: "greeting", want: "Привет Ann"},
		{name: "exact regional locale", locale: "pt_BR", key: "greeting", want: "Olá Ann"},
		{name: "base language", locale: "ru-RU", key: "greeting", want: "Привет Ann"},
		{name: "default locale", locale: "de-DE", key: "greeting", want: "Hello Ann"},
		{name: "empty locale", locale: "", key: "greeting", want: "Hello Ann"},
		{name: "missing in locale", locale: "ru", key: "only_en", want: "english"},
		{name: "missing everywhere", locale: "ru", key: "no_such_key", want: "oops"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.Render(tt.locale, tt.key, Vars{"name": "Ann"})
			if got != tt.want {
				t.Fatalf("Render(%q, %q) = %q, want %q", tt.locale, tt.key, got, tt.want)
			}
		})
	}
}

func TestRenderFillsPlaceholders(t *testing.T) {
	catalog, err := Load("en")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	got := catalog.Render("en", "waitlisted", Vars{"title": "Go meetup", "position": 3})
	if got != "Go meetup is full. You're on the waitlist at position 3." {
		t.Fatalf("unexpected rendering: %q", got)
	}

	untouched := catalog.Render("en", "registered", nil)
	if !strings.Contains(untouched, "{title}") {
		t.Fatalf("expected placeholder to remain without vars, got %q", untouched)
	}

	if got := catalog.Render("ru", "missing_key", nil); got != catalog.Render("en", KeyErrorGeneric, nil) {
		t.Fatalf("expected generic error text, got %q", got)
	}
}
