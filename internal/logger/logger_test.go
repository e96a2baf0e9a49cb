package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestJSONOutputCarriesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter("production", "info", &buf), "outbox")
	log.Info().Msg("relay started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["service"] != serviceName {
		t.Errorf("service = %v", line["service"])
	}
	if line["component"] != "outbox" {
		t.Errorf("component = %v", line["component"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", "warn", &buf)
	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line written at warn level: %q", buf.String())
	}
	log.Warn().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("warn line missing")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
