package log

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetTarget(&buf, "text")
	SetLevel(Info)

	Debugf("hidden %d", 1)
	Infof("shown %d", 2)
	Warningf("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line emitted at Info level: %q", out)
	}
	if !strings.Contains(out, "shown 2") || !strings.Contains(out, "shown 3") {
		t.Errorf("missing lines: %q", out)
	}
	if IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = true at Info level")
	}
}

func TestRateLimitedLogger(t *testing.T) {
	var buf bytes.Buffer
	SetTarget(&buf, "text")
	SetLevel(Warning)

	rl := BasicRateLimitedLogger(time.Hour)
	for i := 0; i < 10; i++ {
		rl.Warningf("tick")
	}
	if got := strings.Count(buf.String(), "tick"); got != 1 {
		t.Errorf("got %d lines, want 1", got)
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: Debug},
		{in: "warning", want: Warning},
		{in: "", want: Info},
		{in: "loud", wantErr: true},
	} {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
