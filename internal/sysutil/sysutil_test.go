package sysutil

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	want := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		" Info ":   zerolog.InfoLevel,
		"WARNING":  zerolog.WarnLevel,
		"warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"fatal":    zerolog.FatalLevel,
		"panic":    zerolog.PanicLevel,
		"trace":    zerolog.TraceLevel,
		"":         zerolog.InfoLevel,
		"verbose":  zerolog.InfoLevel,
		"-":        zerolog.InfoLevel,
		"disabled": zerolog.Disabled,
	}
	for in, lvl := range want {
		if got := ParseLevel(in); got != lvl {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, lvl)
		}
	}
}

func TestSetupLogger_FieldsAndContextFallback(t *testing.T) {
	origLevel, origLogger, origCtx := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
		zerolog.DefaultContextLogger = origCtx
	})

	var buf bytes.Buffer
	SetupLogger(LogOptions{Level: "debug", Service: "connect-gate", Version: "1.2.3", Out: &buf})

	// a bare context falls back to the global logger
	zerolog.Ctx(context.Background()).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("json: %v (%q)", err, buf.String())
	}
	if line["service"] != "connect-gate" || line["version"] != "1.2.3" || line["message"] != "hello" {
		t.Fatalf("unexpected line: %v", line)
	}
	if _, ok := line["time"]; !ok {
		t.Fatalf("missing timestamp: %v", line)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Fatalf("level not applied")
	}
}

func TestSetupLogger_Pretty(t *testing.T) {
	origLogger, origCtx := log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() { log.Logger = origLogger; zerolog.DefaultContextLogger = origCtx })

	var buf bytes.Buffer
	l := SetupLogger(LogOptions{Level: "info", Pretty: true, Out: &buf})
	l.Info().Msg("pretty")
	if bytes.HasPrefix(bytes.TrimSpace(buf.Bytes()), []byte("{")) {
		t.Fatalf("pretty output should not be JSON: %q", buf.String())
	}
}

func TestFirstNonEmpty(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"", " \t"}, ""},
		{[]string{"", "v1.4.0", "dev"}, "v1.4.0"},
		{[]string{" v2 ", "dev"}, " v2 "},
	}
	for _, tc := range cases {
		if got := FirstNonEmpty(tc.in...); got != tc.want {
			t.Fatalf("FirstNonEmpty(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
