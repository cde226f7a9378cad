package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		" WARN ":   zerolog.WarnLevel,
		"":         zerolog.InfoLevel,
		"nonsense": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentFieldIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(Config{Level: "info", Format: "json"}, &buf), "watcher")
	logger.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json 输出解析失败: %v (%s)", err, buf.String())
	}
	if entry["component"] != "watcher" {
		t.Fatalf("component 字段缺失: %#v", entry)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn"}, &buf)
	logger.Info().Msg("dropped")
	if strings.Contains(buf.String(), "dropped") {
		t.Fatal("info should be filtered at warn level")
	}
}
