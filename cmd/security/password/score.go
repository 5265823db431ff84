package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Strength is the coarse band derived from a numeric score.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthFair   Strength = "fair"
	StrengthGood   Strength = "good"
	StrengthStrong Strength = "strong"
)

// Scoring constants.
const (
	MinLength  = 8
	LongLength = 12

	pointsMinLength  = 25
	pointsLongLength = 15
	pointsPerClass   = 15
	penaltyCommon    = 30

	maxScore = 100
)

// Hard error messages returned in Result.Errors, in check order.
const (
	MsgTooShort  = "password must be at least 8 characters"
	MsgNoLower   = "password must contain a lowercase letter"
	MsgNoUpper   = "password must contain an uppercase letter"
	MsgNoDigit   = "password must contain a digit"
	MsgNoSymbol  = "password must contain a symbol"
	MsgTooCommon = "password is too common"
)

// Result is the outcome of Score.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Score    int      `json:"score"`
	Strength Strength `json:"strength"`
}

// Score estimates password strength. It is pure and deterministic.
//
// Points: length >= 8 (+25), length >= 12 (+15), and +15 for each of
// lowercase, uppercase, digit and symbol. A deny-listed password costs 30
// points. The result is clamped to [0, 100].
func Score(pw string) Result {
	errs := make([]string, 0, 4)
	score := 0

	n := utf8.RuneCountInString(pw)
	if n >= MinLength {
		score += pointsMinLength
	} else {
		errs = append(errs, MsgTooShort)
	}
	if n >= LongLength {
		score += pointsLongLength
	}

	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			symbol = true
		}
	}

	for _, c := range []struct {
		ok  bool
		msg string
	}{
		{lower, MsgNoLower},
		{upper, MsgNoUpper},
		{digit, MsgNoDigit},
		{symbol, MsgNoSymbol},
	} {
		if c.ok {
			score += pointsPerClass
			continue
		}
		errs = append(errs, c.msg)
	}

	if isCommon(pw) {
		score -= penaltyCommon
		errs = append(errs, MsgTooCommon)
	}

	if score < 0 {
		score = 0
	}
	if score > maxScore {
		score = maxScore
	}

	return Result{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Score:    score,
		Strength: band(score),
	}
}

func band(score int) Strength {
	switch {
	case score >= 80:
		return StrengthStrong
	case score >= 60:
		return StrengthGood
	case score >= 40:
		return StrengthFair
	default:
		return StrengthWeak
	}
}

// isCommon reports deny-listed passwords (case-insensitive) and single repeated characters.
func isCommon(pw string) bool {
	s := strings.ToLower(strings.TrimSpace(pw))
	if s == "" {
		return false
	}
	if _, ok := denyList[s]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	for _, r := range s {
		if r != first {
			return false
		}
	}
	return utf8.RuneCountInString(s) > 1
}

var denyList = func() map[string]struct{} {
	words := []string{
		"password", "password1", "password123", "password!", "passw0rd",
		"123456", "1234567", "12345678", "123456789", "1234567890",
		"qwerty", "qwerty123", "qwertyuiop", "azerty", "abc123", "abcd1234",
		"111111", "11111111", "000000", "00000000", "123123", "654321",
		"iloveyou", "admin", "admin123", "administrator", "welcome", "welcome1",
		"letmein", "monkey", "dragon", "football", "baseball", "sunshine",
		"princess", "master", "shadow", "superman", "trustno1", "starwars",
		"login", "changeme", "secret", "default", "root", "toor", "test1234",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
