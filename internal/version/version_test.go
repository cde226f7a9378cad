package version

import (
	"strings"
	"testing"
)

func TestStringIncludesBuildInfo(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	out := String()
	if !strings.HasPrefix(out, "pricewatch 1.2.3\n") {
		t.Fatalf("unexpected version header: %q", out)
	}
	if !strings.Contains(out, "commit: "+Commit) {
		t.Fatalf("commit missing from %q", out)
	}
	if got := UserAgent(); got != "pricewatch/1.2.3" {
		t.Fatalf("unexpected user agent %q", got)
	}
}
