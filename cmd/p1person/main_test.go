package main

import (
	"strings"
	"testing"

	"github.com/mattpollicove/p1person/core"
)

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{"-p", "acme_", "-r", "-y", "--dryrun"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if flags.prefix != "acme_" || !flags.remove || !flags.yes || !flags.dryRun {
		t.Fatalf("flags = %+v", flags)
	}
}

func TestParseFlagsHiddenEasterEggs(t *testing.T) {
	flags, err := parseFlags([]string{"--Skynet", "--Cyberdyne"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.skynet || !flags.cyberdyne {
		t.Fatalf("flags = %+v", flags)
	}
}

func TestValidateFlagsCombinations(t *testing.T) {
	cases := []struct {
		name    string
		flags   cliFlags
		wantErr string
	}{
		{"test connection standalone", cliFlags{testConnection: true}, ""},
		{"test connection with yes allowed", cliFlags{testConnection: true, yes: true}, ""},
		{"test connection with remove", cliFlags{testConnection: true, remove: true}, "-t/--testconnection"},
		{"test connection with prefix", cliFlags{testConnection: true, prefix: "x_"}, "-t/--testconnection"},
		{"test connection with history", cliFlags{testConnection: true, history: true}, "-t/--testconnection"},
		{"history standalone", cliFlags{history: true}, ""},
		{"history with yes allowed", cliFlags{history: true, yes: true}, ""},
		{"history with remove", cliFlags{history: true, remove: true}, "--history"},
		{"history with display", cliFlags{history: true, display: true}, "--history"},
		{"clear with remove", cliFlags{clear: true, remove: true}, "-c/--clear"},
		{"display with remove", cliFlags{display: true, remove: true}, "-d/--display"},
		{"display with clear allowed", cliFlags{display: true, clear: true}, ""},
		{"remove with prefix allowed", cliFlags{remove: true, prefix: "x_"}, ""},
	}
	for _, tc := range cases {
		err := validateFlags(tc.flags)
		if tc.wantErr == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: error = %v, want mention of %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestSelectSpecDefaultsWithPrefix(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.AttributePrefix = "acme_"

	spec, err := selectSpec(cfg, cliFlags{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(spec) != 12 {
		t.Fatalf("spec size = %d, want 12", len(spec))
	}
	if _, ok := spec["acme_department"]; !ok {
		t.Fatalf("expected prefixed default, got %v", spec.Names())
	}
}

func TestSelectSpecAdditional(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.AdditionalAttrs = map[string]string{"costCenter": "Cost center code."}

	spec, err := selectSpec(cfg, cliFlags{additionalAttrs: true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(spec) != 1 {
		t.Fatalf("additional spec should not include defaults: %v", spec.Names())
	}
	if _, ok := spec["costCenter"]; !ok {
		t.Fatalf("spec = %v", spec.Names())
	}
}

func TestSelectSpecAdditionalMissing(t *testing.T) {
	if _, err := selectSpec(core.DefaultConfig(), cliFlags{additionalAttrs: true}); err == nil {
		t.Fatalf("expected error when no additional attributes are configured")
	}
}

func TestParseFlagsHistory(t *testing.T) {
	flags, err := parseFlags([]string{"--history"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.history {
		t.Fatalf("history flag not set")
	}
}

func TestVersionFlag(t *testing.T) {
	flags, err := parseFlags([]string{"--version"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !flags.showVersion {
		t.Fatalf("version flag not set")
	}
}
