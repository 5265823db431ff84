package app

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("WARDEN_TEST_INT", "-3")
	t.Setenv("WARDEN_TEST_INT32", "0")
	t.Setenv("WARDEN_TEST_DUR", "90s")
	t.Setenv("WARDEN_TEST_BOOL", "nope")
	t.Setenv("WARDEN_TEST_CSV", " http://a.example , ,http://b.example ")

	if got := EnvInt("WARDEN_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt negative=%d want default 7", got)
	}
	if got := EnvInt32("WARDEN_TEST_INT32", 5); got != 0 {
		t.Fatalf("EnvInt32 zero=%d want 0", got)
	}
	if got := EnvDuration("WARDEN_TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("EnvDuration=%v", got)
	}
	if got := EnvBool("WARDEN_TEST_BOOL", true); !got {
		t.Fatalf("EnvBool malformed should keep default")
	}
	csv := EnvCSV("WARDEN_TEST_CSV")
	if len(csv) != 2 || csv[0] != "http://a.example" || csv[1] != "http://b.example" {
		t.Fatalf("EnvCSV=%q", csv)
	}
	if EnvCSV("WARDEN_TEST_UNSET") != nil {
		t.Fatalf("EnvCSV unset should be nil")
	}
}
