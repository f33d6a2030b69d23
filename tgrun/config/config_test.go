package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/walteh/tgexec/pkg/log"
	"github.com/walteh/tgexec/pkg/sentry/kernel"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tgrun.toml")
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestDefaultMatchesKernel(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if diff := cmp.Diff(kernel.DefaultConfig(), c.ToKernel()); diff != "" {
		t.Errorf("kernel config mismatch (-want +got):\n%s", diff)
	}
	if got := c.LogLevel(); got != log.Info {
		t.Errorf("LogLevel got %v, want Info", got)
	}
}

func TestLoad(t *testing.T) {
	p := writeConfig(t, `
[log]
level = "debug"
format = "json"

[exec]
max_arg_total = 4096
barrier_warn_interval = "250ms"
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.Log = Log{Level: "debug", Format: "json"}
	want.Exec.MaxArgTotal = 4096
	want.Exec.BarrierWarnInterval = Duration(250 * time.Millisecond)
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if got := c.ToKernel().BarrierWarnInterval; got != 250*time.Millisecond {
		t.Errorf("BarrierWarnInterval got %v, want 250ms", got)
	}
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
		want     string
	}{
		{name: "syntax", contents: "[log\n", want: "reading"},
		{name: "unknown key", contents: "[exec]\nmax_threads = 3\n", want: "unknown keys: exec.max_threads"},
		{name: "bad level", contents: "[log]\nlevel = \"loud\"\n", want: "invalid log level"},
		{name: "bad format", contents: "[log]\nformat = \"xml\"\n", want: "invalid log format"},
		{name: "zero limit", contents: "[exec]\nmax_arg_strings = 0\n", want: "exec.max_arg_strings must be positive"},
		{name: "bad duration", contents: "[exec]\nbarrier_warn_interval = \"soon\"\n", want: "reading"},
		{name: "negative duration", contents: "[exec]\nbarrier_warn_interval = \"-1s\"\n", want: "barrier_warn_interval must be positive"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.contents))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load got error %v, want one containing %q", err, tc.want)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("Load of a missing file succeeded")
	}
}
