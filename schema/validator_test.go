package payloadschema

import (
	"encoding/json"
	"testing"
)

func validPayload() map[string]any {
	return map[string]any{
		"payload_version": "v1",
		"source":          "mta-feed",
		"source_item_id":  "alert-1001",
		"title":           "Delays on the A line after signal problems",
		"content_type":    "transit_delay",
		"priority":        70,
		"locator":         "https://alerts.example.com/mta/1001",
		"created_at":      "2025-06-02T11:30:00Z",
	}
}

func marshalPayload(t *testing.T, payload map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestValidateCandidatePayloadAcceptsValid(t *testing.T) {
	t.Parallel()

	candidate, err := ValidateCandidatePayload(marshalPayload(t, validPayload()))
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if candidate.Source != "mta-feed" {
		t.Fatalf("unexpected source: %q", candidate.Source)
	}
	if candidate.ContentType != "transit_delay" {
		t.Fatalf("unexpected content type: %q", candidate.ContentType)
	}
	if candidate.Priority == nil || *candidate.Priority != 70 {
		t.Fatalf("unexpected priority: %v", candidate.Priority)
	}
}

func TestValidateCandidatePayloadRejectsMissingFields(t *testing.T) {
	t.Parallel()

	for _, field := range []string{"payload_version", "source", "source_item_id", "title", "content_type"} {
		payload := validPayload()
		delete(payload, field)
		if _, err := ValidateCandidatePayload(marshalPayload(t, payload)); err == nil {
			t.Fatalf("expected error for missing %s", field)
		}
	}
}

func TestValidateCandidatePayloadRejectsWrongVersion(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["payload_version"] = "v2"
	if _, err := ValidateCandidatePayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for payload_version v2")
	}
}

func TestValidateCandidatePayloadRejectsBadPriority(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["priority"] = 150
	if _, err := ValidateCandidatePayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for out-of-range priority")
	}
}

func TestValidateCandidatePayloadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["surprise"] = true
	if _, err := ValidateCandidatePayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestValidateCandidatePayloadRejectsTrailingContent(t *testing.T) {
	t.Parallel()

	raw := append(marshalPayload(t, validPayload()), []byte(`{"second": true}`)...)
	if _, err := ValidateCandidatePayload(raw); err == nil {
		t.Fatalf("expected error for trailing content")
	}
}

func TestValidateCandidatePayloadRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload["created_at"] = "yesterday"
	if _, err := ValidateCandidatePayload(marshalPayload(t, payload)); err == nil {
		t.Fatalf("expected error for non-RFC3339 created_at")
	}
}
