package version

import (
	"strings"
	"testing"
)

func TestStringIncludesAllFields(t *testing.T) {
	out := String()
	for _, want := range []string{"version: " + Version, "commit: " + Commit, "built: " + BuildDate} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}
