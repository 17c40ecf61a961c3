package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "abc123", RunID("abc123")},
		{"Branch", KeyBranch, "master", Branch("master")},
		{"Commit", KeyCommit, "deadbeef", Commit("deadbeef")},
		{"Channel", KeyChannel, "nightly", Channel("nightly")},
		{"Package", KeyPackage, "core", Package("core")},
		{"Step", KeyStep, "build", Step("build")},
		{"Verdict", KeyVerdict, "pass", Verdict("pass")},
		{"Event", KeyEvent, "success", Event("success")},
		{"ScheduleID", KeyScheduleID, "sch1", ScheduleID("sch1")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

func TestErrorAttr(t *testing.T) {
	if got := Error(nil).Value.String(); got != "" {
		t.Fatalf("nil error should produce empty value, got %q", got)
	}
	if got := Error(errors.New("boom")).Value.String(); got != "boom" {
		t.Fatalf("expected boom, got %q", got)
	}
}
