package admission

import (
	"strings"
	"testing"
)

func TestGenerateJobNameIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		name := GenerateJobName("edges")
		if !strings.HasPrefix(name, "edges-") {
			t.Fatalf("GenerateJobName() = %q, want prefix %q", name, "edges-")
		}

		if seen[name] {
			t.Fatalf("GenerateJobName() produced duplicate %q", name)
		}
		seen[name] = true
	}
}
