package normalize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"modelguard/internal/model"
)

func TestNormalizeRejectsBadIdentity(t *testing.T) {
	cases := []string{"", "   ", "two words", "ctl\x01char", strings.Repeat("a", 300)}
	for _, identity := range cases {
		_, err := Normalize(model.RawEvent{Identity: identity})
		if !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("identity %q: err = %v, want ErrInvalidEvent", identity, err)
		}
	}
}

func TestCanonicalIdentityIP(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10.0.0.5", "10.0.0.5"},
		{"  10.0.0.5  ", "10.0.0.5"},
		{"2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1"},
		{"api-key-7f3a", "api-key-7f3a"},
		{"user@example.com", "user@example.com"},
	}
	for _, tc := range cases {
		got, err := CanonicalIdentity(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q canonicalized to %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeFillsMissingTimestamp(t *testing.T) {
	before := time.Now().UTC()
	ev, err := Normalize(model.RawEvent{Identity: "10.0.0.5"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	after := time.Now().UTC()
	if ev.Timestamp.Before(before) || ev.Timestamp.After(after) {
		t.Fatalf("filled timestamp %v outside [%v, %v]", ev.Timestamp, before, after)
	}
}

func TestNormalizeRejectsBadTimestamp(t *testing.T) {
	_, err := Normalize(model.RawEvent{Identity: "10.0.0.5", Timestamp: "yesterday-ish"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestParseTimestampFormats(t *testing.T) {
	want := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	cases := []string{
		"2026-03-14T09:26:53Z",
		"2026-03-14 09:26:53",
		"2026-03-14T09:26:53",
		"1773480413",
	}
	for _, value := range cases {
		got, err := ParseTimestamp(value)
		if err != nil {
			t.Fatalf("%q: %v", value, err)
		}
		if !got.UTC().Equal(want) {
			t.Fatalf("%q parsed to %v, want %v", value, got.UTC(), want)
		}
	}
}

func TestParseTimestampMilliseconds(t *testing.T) {
	got, err := ParseTimestamp("1773480413000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Unix(1773480413, 0).UTC()
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseOutcome(t *testing.T) {
	cases := []struct {
		in   string
		want model.Outcome
	}{
		{"success", model.OutcomeSuccess},
		{"OK", model.OutcomeSuccess},
		{"allowed", model.OutcomeSuccess},
		{"failure", model.OutcomeFailure},
		{"DENIED", model.OutcomeFailure},
		{"error", model.OutcomeFailure},
		{"", model.OutcomeUnknown},
		{"maybe", model.OutcomeUnknown},
	}
	for _, tc := range cases {
		if got := ParseOutcome(tc.in); got != tc.want {
			t.Fatalf("ParseOutcome(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
