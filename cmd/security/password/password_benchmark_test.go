package password

import "testing"

const benchSecret = "Correct-Horse-9-Battery"

func BenchmarkHash_DefaultConfig(b *testing.B) {
	cfg := DefaultConfig()
	for b.Loop() {
		if _, err := cfg.Hash(benchSecret); err != nil {
			b.Fatalf("Hash error: %v", err)
		}
	}
}

// Verify dominates login latency; CredentialTimeout must stay above it.
func BenchmarkVerify_DefaultConfig(b *testing.B) {
	cfg := DefaultConfig()
	h, err := cfg.Hash(benchSecret)
	if err != nil {
		b.Fatalf("Hash error: %v", err)
	}
	for b.Loop() {
		if ok, err := cfg.Verify(h, benchSecret); err != nil || !ok {
			b.Fatalf("Verify failed: ok=%v err=%v", ok, err)
		}
	}
}

func BenchmarkScore(b *testing.B) {
	for b.Loop() {
		_ = Score(benchSecret)
	}
}
