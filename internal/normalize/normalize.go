package normalize

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
	"unicode"

	"modelguard/internal/model"
)

// ErrInvalidEvent marks input rejected before it reaches any tracker.
// Callers can test for it with errors.Is.
var ErrInvalidEvent = errors.New("invalid event")

const maxIdentityLen = 256

// Normalize validates a raw telemetry record and canonicalizes it into
// a RequestEvent. The identity must be a network address or a printable
// opaque token; a missing timestamp is filled with the current time.
func Normalize(raw model.RawEvent) (model.RequestEvent, error) {
	identity, err := CanonicalIdentity(raw.Identity)
	if err != nil {
		return model.RequestEvent{}, err
	}

	ts := time.Now().UTC()
	if raw.Timestamp != "" {
		parsed, err := ParseTimestamp(raw.Timestamp)
		if err != nil {
			return model.RequestEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		ts = parsed.UTC()
	}

	return model.RequestEvent{
		Identity:  identity,
		Payload:   raw.Payload,
		Timestamp: ts,
		Outcome:   ParseOutcome(raw.Outcome),
		Source:    raw.Source,
	}, nil
}

// CanonicalIdentity trims the identity and, when it parses as an IP
// address, rewrites it in canonical form so "10.0.0.5" and "10.000.0.5"
// key the same per-identity state.
func CanonicalIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", fmt.Errorf("%w: identity is empty", ErrInvalidEvent)
	}
	if len(identity) > maxIdentityLen {
		return "", fmt.Errorf("%w: identity longer than %d bytes", ErrInvalidEvent, maxIdentityLen)
	}
	if addr, err := netip.ParseAddr(identity); err == nil {
		return addr.String(), nil
	}
	for _, r := range identity {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", fmt.Errorf("%w: identity contains whitespace or control characters", ErrInvalidEvent)
		}
	}
	return identity, nil
}

func ParseOutcome(value string) model.Outcome {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ok", "success", "succeeded", "allow", "allowed", "pass", "true":
		return model.OutcomeSuccess
	case "fail", "failed", "failure", "denied", "reject", "rejected", "error", "invalid", "false":
		return model.OutcomeFailure
	}
	return model.OutcomeUnknown
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
