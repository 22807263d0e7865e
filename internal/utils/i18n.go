package utils

import "fmt"

// Server-side strings for fixed keys. Question text comes from the survey
// pack and is never translated here.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":            "ok",
		"stats.others":         "%d other guardians have answered this question.",
		"stats.first":          "You are the first guardian to answer this question.",
		"submit.done":          "Your answers have been saved. Thank you!",
		"error.session":        "Your session has expired. Please start again.",
		"error.name_required":  "Please enter the child's name before submitting.",
		"error.rate_limited":   "Too many messages. Please wait a moment.",
		"error.assistant_off":  "The assistant is not available right now.",
		"error.internal":       "Something went wrong. Please try again.",
		"error.unauthorized":   "Please sign in.",
		"report.not_submitted": "Submit the survey before downloading the report.",
	},
	"ko": {
		"health.ok":            "정상",
		"stats.others":         "다른 보호자 %d명이 이 질문에 답했습니다.",
		"stats.first":          "이 질문에 처음으로 답하셨습니다.",
		"submit.done":          "답변이 저장되었습니다. 감사합니다!",
		"error.session":        "세션이 만료되었습니다. 다시 시작해 주세요.",
		"error.name_required":  "제출하기 전에 아이 이름을 입력해 주세요.",
		"error.rate_limited":   "메시지가 너무 많습니다. 잠시 후 다시 시도해 주세요.",
		"error.assistant_off":  "지금은 상담 도우미를 사용할 수 없습니다.",
		"error.internal":       "문제가 발생했습니다. 다시 시도해 주세요.",
		"error.unauthorized":   "로그인해 주세요.",
		"report.not_submitted": "보고서를 받으려면 먼저 설문을 제출해 주세요.",
	},
}

// SupportedLocales lists the locales T knows, default first.
var SupportedLocales = []string{"en", "ko"}

// T returns the translated string for key in locale; falls back to English,
// then to the key itself.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}

// Tf formats the translated string with args.
func Tf(locale, key string, args ...any) string {
	return fmt.Sprintf(T(locale, key), args...)
}
