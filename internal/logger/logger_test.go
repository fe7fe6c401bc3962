package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"debug", LevelDebug, false},
		{"WARNING", LevelWarning, false},
		{"error", LevelError, false},
		{"trace", LevelTrace, false},
		{"loud", LevelInfo, true},
	}

	for _, tc := range testCases {
		got, err := ParseLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWarnIncrementsCounter(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	before := TotalWarnings.Load()
	Warn("selector fallback", "selector", "champion")

	if TotalWarnings.Load() != before+1 {
		t.Errorf("TotalWarnings = %d, want %d", TotalWarnings.Load(), before+1)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["selector"] != "champion" {
		t.Errorf("selector attr = %v", line["selector"])
	}
}

func TestCountHTTPStatus(t *testing.T) {
	before4xx, before5xx := Total4xxErrors.Load(), Total5xxErrors.Load()

	CountHTTPStatus(200)
	CountHTTPStatus(404)
	CountHTTPStatus(503)

	if Total4xxErrors.Load() != before4xx+1 {
		t.Errorf("4xx counter = %d, want %d", Total4xxErrors.Load(), before4xx+1)
	}
	if Total5xxErrors.Load() != before5xx+1 {
		t.Errorf("5xx counter = %d, want %d", Total5xxErrors.Load(), before5xx+1)
	}

	if _, ok := Counters()["http_5xx"]; !ok {
		t.Error("Counters() should report http_5xx")
	}
}
