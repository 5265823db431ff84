package suspicion

import "strings"

// defaultPatterns are matched against lower-cased input with runs of
// whitespace collapsed to one space. NUL bytes are always flagged.
var defaultPatterns = []string{
	"<script",
	"javascript:",
	"onerror=",
	"union select",
	"' or 1=1",
	"\" or 1=1",
	"' or '1'='1",
	"drop table",
	";--",
	"../",
	"..\\",
}

// Detector flags input that looks like an injection or traversal probe.
// It is advisory: a match is reported, never used to refuse a request.
type Detector struct {
	patterns []string
}

// NewDetector returns a Detector with the built-in patterns plus extra.
func NewDetector(extra ...string) *Detector {
	p := make([]string, 0, len(defaultPatterns)+len(extra))
	p = append(p, defaultPatterns...)
	for _, e := range extra {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			p = append(p, e)
		}
	}
	return &Detector{patterns: p}
}

// Scan returns the first matching pattern.
func (d *Detector) Scan(input string) (string, bool) {
	if input == "" {
		return "", false
	}
	if strings.ContainsRune(input, 0) {
		return "\x00", true
	}
	norm := strings.Join(strings.Fields(strings.ToLower(input)), " ")
	for _, p := range d.patterns {
		if strings.Contains(norm, p) {
			return p, true
		}
	}
	return "", false
}
