package utils

import "testing"

func TestDetermineLocale_QueryParamWins(t *testing.T) {
	got := DetermineLocale("ko-KR", "en-US,en;q=0.9,ko;q=0.8", SupportedLocales, "en")
	if got != "ko" {
		t.Fatalf("want ko, got %s", got)
	}
}

func TestDetermineLocale_AcceptLanguageOrder(t *testing.T) {
	got := DetermineLocale("", "en-US,en;q=0.9,ko;q=0.8", SupportedLocales, "en")
	if got != "en" {
		t.Fatalf("want en, got %s", got)
	}
}

func TestDetermineLocale_AcceptLanguagePrefersHigherQ(t *testing.T) {
	got := DetermineLocale("", "en;q=0.5,ko-KR;q=0.95", SupportedLocales, "en")
	if got != "ko" {
		t.Fatalf("want ko, got %s", got)
	}
}

func TestDetermineLocale_ZeroQExcluded(t *testing.T) {
	got := DetermineLocale("", "ko;q=0, fr", SupportedLocales, "en")
	if got != "en" {
		t.Fatalf("want en, got %s", got)
	}
}

func TestDetermineLocale_DefaultFallback(t *testing.T) {
	got := DetermineLocale("", "fr-FR,es;q=0.9", SupportedLocales, "en")
	if got != "en" {
		t.Fatalf("want en fallback, got %s", got)
	}
	if got := DetermineLocale("", "", []string{"ko"}, "de"); got != "ko" {
		t.Fatalf("want first supported, got %s", got)
	}
}
