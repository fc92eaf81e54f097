package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"modelguard/internal/model"
)

// ParseJSONBytes maps one JSON telemetry object onto a RawEvent,
// accepting the field aliases common in request logs.
func ParseJSONBytes(data []byte) (model.RawEvent, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return model.RawEvent{}, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONMap(obj map[string]any) model.RawEvent {
	fields := make(map[string]any, len(obj))
	for key, val := range obj {
		fields[strings.ToLower(key)] = val
	}
	ev := model.RawEvent{
		Identity:  stringField(fields, "identity", "ip", "ip_address", "source_ip", "client_ip", "source"),
		Timestamp: timestampField(fields, "timestamp", "time", "ts"),
		Outcome:   stringField(fields, "outcome", "result", "status"),
	}
	ev.Payload = payloadField(fields, "payload", "input", "input_data", "prompt", "body")
	return ev
}

func stringField(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := fields[key]; ok {
			s := strings.TrimSpace(fmt.Sprint(val))
			if s != "" {
				return s
			}
		}
	}
	return ""
}

// timestampField is stringField with one extra case: JSON numbers
// arrive as float64, and unix timestamps must come out as plain digits
// rather than scientific notation.
func timestampField(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		val, ok := fields[key]
		if !ok || val == nil {
			continue
		}
		if f, ok := val.(float64); ok {
			if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
				return strconv.FormatInt(int64(f), 10)
			}
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		s := strings.TrimSpace(fmt.Sprint(val))
		if s != "" {
			return s
		}
	}
	return ""
}

// payloadField keeps structured payloads as their JSON encoding so the
// numeric pattern matchers can still see them.
func payloadField(fields map[string]any, keys ...string) []byte {
	for _, key := range keys {
		val, ok := fields[key]
		if !ok || val == nil {
			continue
		}
		if s, ok := val.(string); ok {
			if s == "" {
				continue
			}
			return []byte(s)
		}
		data, err := json.Marshal(val)
		if err != nil {
			continue
		}
		return data
	}
	return nil
}
