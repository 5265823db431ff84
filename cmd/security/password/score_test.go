package password

import (
	"reflect"
	"testing"
)

func TestScore_Examples(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		in       string
		valid    bool
		score    int
		strength Strength
		errs     []string
	}{
		{
			name:     "mixed classes short",
			in:       "Passw0rd!",
			valid:    true,
			score:    85,
			strength: StrengthStrong,
			errs:     []string{},
		},
		{
			name:     "deny listed",
			in:       "password",
			valid:    false,
			score:    10,
			strength: StrengthWeak,
			errs:     []string{MsgNoUpper, MsgNoDigit, MsgNoSymbol, MsgTooCommon},
		},
		{
			name:     "single char",
			in:       "a",
			valid:    false,
			score:    15,
			strength: StrengthWeak,
			errs:     []string{MsgTooShort, MsgNoUpper, MsgNoDigit, MsgNoSymbol},
		},
		{
			name:     "long and complete",
			in:       "Correct-Horse-9-Battery",
			valid:    true,
			score:    100,
			strength: StrengthStrong,
			errs:     []string{},
		},
		{
			name:     "deny list is case insensitive",
			in:       "PASSWORD",
			valid:    false,
			score:    10,
			strength: StrengthWeak,
			errs:     []string{MsgNoLower, MsgNoDigit, MsgNoSymbol, MsgTooCommon},
		},
		{
			name:     "fair band",
			in:       "lowercaseonly",
			valid:    false,
			score:    55,
			strength: StrengthFair,
			errs:     []string{MsgNoUpper, MsgNoDigit, MsgNoSymbol},
		},
		{
			name:     "empty",
			in:       "",
			valid:    false,
			score:    0,
			strength: StrengthWeak,
			errs:     []string{MsgTooShort, MsgNoLower, MsgNoUpper, MsgNoDigit, MsgNoSymbol},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Score(tc.in)
			if got.Valid != tc.valid || got.Score != tc.score || got.Strength != tc.strength {
				t.Fatalf("Score(%q)=%+v want valid=%v score=%d strength=%s", tc.in, got, tc.valid, tc.score, tc.strength)
			}
			if !reflect.DeepEqual(got.Errors, tc.errs) {
				t.Fatalf("Score(%q).Errors=%q want=%q", tc.in, got.Errors, tc.errs)
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	for _, pw := range []string{"Passw0rd!", "x", "aaaaaaaaaaaa", "Zz9!Zz9!Zz9!"} {
		a, b := Score(pw), Score(pw)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("Score(%q) not deterministic: %+v vs %+v", pw, a, b)
		}
		if a.Valid != (len(a.Errors) == 0) {
			t.Fatalf("Score(%q) valid flag disagrees with errors: %+v", pw, a)
		}
		if a.Score < 0 || a.Score > 100 {
			t.Fatalf("Score(%q) out of range: %d", pw, a.Score)
		}
	}
}

func TestScore_RepeatedCharIsCommon(t *testing.T) {
	t.Parallel()

	got := Score("aaaaaaaaaaaa")
	if got.Valid {
		t.Fatalf("expected invalid")
	}
	// 25 + 15 + 15 - 30
	if got.Score != 25 {
		t.Fatalf("score=%d want=25", got.Score)
	}
}
