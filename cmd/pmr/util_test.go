package main

import "testing"

func TestParseEnvPairs(t *testing.T) {
	got, err := parseEnvPairs([]string{"FOO=bar", "EMPTY=", "EQ=a=b"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["FOO"] != "bar" || got["EMPTY"] != "" || got["EQ"] != "a=b" {
		t.Fatalf("unexpected map: %v", got)
	}
}

func TestParseEnvPairsRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"NOVALUE", "=empty-key", ""} {
		if _, err := parseEnvPairs([]string{bad}); err == nil {
			t.Fatalf("pair %q should be rejected", bad)
		}
	}
}
