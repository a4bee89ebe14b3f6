// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"testing"

	"golang.org/x/text/language"
)

func TestNew(t *testing.T) {
	t.Run("new i18n provider with empty locale string succeeds", func(t *testing.T) {
		provider, err := New("")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if provider == nil {
			t.Fatal("expected i18n provider to be non-nil")
		}
	})
	t.Run("german localizer translates messages", func(t *testing.T) {
		provider, err := New("de")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if got := provider.Get("Address unavailable"); got != "Adresse nicht verfügbar" {
			t.Errorf("expected translated message, got %q", got)
		}
	})
	t.Run("untranslated language falls back to english", func(t *testing.T) {
		provider, err := New("fr")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if got := provider.Get("Address unavailable"); got != "Address unavailable" {
			t.Errorf("expected source message, got %q", got)
		}
	})
}

func TestTag(t *testing.T) {
	if tag := Tag("de-DE"); tag != language.MustParse("de-DE") {
		t.Errorf("expected tag de-DE, got %s", tag)
	}
	t.Setenv("LANGUAGE", "")
	t.Setenv("LC_ALL", "de_DE.UTF-8")
	base, _ := Tag("").Base()
	if base.String() != "de" {
		t.Errorf("expected detected base language de, got %s", base)
	}
}
