package version

import (
	"regexp"
	"testing"
)

func TestGet(t *testing.T) {
	if !regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(Get()) {
		t.Errorf("unexpected version %q", Get())
	}
}
