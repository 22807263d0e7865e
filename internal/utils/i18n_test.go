package utils

import "testing"

func TestT_Fallback(t *testing.T) {
	if got := T("fr", "health.ok"); got != "ok" {
		t.Fatalf("fallback to en failed: %s", got)
	}
	if got := T("ko", "missing.key"); got != "missing.key" {
		t.Fatalf("unknown key should echo, got %s", got)
	}
}

func TestTf(t *testing.T) {
	if got := Tf("en", "stats.others", 3); got != "3 other guardians have answered this question." {
		t.Fatalf("unexpected %q", got)
	}
	if got := Tf("ko", "stats.others", 3); got != "다른 보호자 3명이 이 질문에 답했습니다." {
		t.Fatalf("unexpected %q", got)
	}
}
