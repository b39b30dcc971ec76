package config

import (
	"bytes"
	"testing"
)

func TestExitfWritesAndExits(t *testing.T) {
	var out bytes.Buffer
	var code int
	prevOut, prevExit := stderr, exit
	stderr, exit = &out, func(c int) { code = c }
	t.Cleanup(func() { stderr, exit = prevOut, prevExit })

	Exitf("Error: %s", "seed failed")

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if got := out.String(); got != "Error: seed failed\n" {
		t.Fatalf("stderr = %q", got)
	}
}
