package suspicion

import "testing"

func TestDetector_Scan(t *testing.T) {
	d := NewDetector("sleep(")

	tests := []struct {
		in   string
		want string
		hit  bool
	}{
		{in: "alice", hit: false},
		{in: "alice@example.com", hit: false},
		{in: "", hit: false},
		{in: "<SCRIPT>alert(1)</script>", want: "<script", hit: true},
		{in: "x' OR 1=1 --", want: "' or 1=1", hit: true},
		{in: "1 UNION\t  SELECT password", want: "union select", hit: true},
		{in: "../../etc/passwd", want: "../", hit: true},
		{in: "admin';--", want: ";--", hit: true},
		{in: "bob\x00", want: "\x00", hit: true},
		{in: "JavaScript:alert(1)", want: "javascript:", hit: true},
		{in: "1; SLEEP(5)", want: "sleep(", hit: true},
	}

	for _, tt := range tests {
		got, hit := d.Scan(tt.in)
		if hit != tt.hit || got != tt.want {
			t.Fatalf("Scan(%q) = (%q, %v), want (%q, %v)", tt.in, got, hit, tt.want, tt.hit)
		}
	}
}
