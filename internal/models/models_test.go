package models

import (
	"encoding/json"
	"testing"
)

func TestJSONBMarshal(t *testing.T) {
	j := JSONB{
		"speech_density": 1.4,
		"hook_words":     []string{"secret", "never"},
	}

	data, err := j.Value()
	if err != nil {
		t.Fatalf("failed to marshal JSONB: %v", err)
	}

	if data == nil {
		t.Fatal("expected non-nil data")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data.([]byte), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["speech_density"] != 1.4 {
		t.Errorf("expected speech_density=1.4, got %v", result["speech_density"])
	}
}

func TestJSONBScan(t *testing.T) {
	jsonData := []byte(`{"scene_alignment_bonus": 5, "duration_shape": "ideal"}`)

	var j JSONB
	if err := j.Scan(jsonData); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if j["duration_shape"] != "ideal" {
		t.Errorf("expected duration_shape=ideal, got %v", j["duration_shape"])
	}

	if j["scene_alignment_bonus"].(float64) != 5 {
		t.Errorf("expected scene_alignment_bonus=5, got %v", j["scene_alignment_bonus"])
	}
}

func TestErrorDetailValue(t *testing.T) {
	e := &ErrorDetail{Code: "EncodeError", Message: "loudness normalisation failed"}

	data, err := e.Value()
	if err != nil {
		t.Fatalf("failed to marshal ErrorDetail: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data.([]byte), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["code"] != "EncodeError" {
		t.Errorf("expected code=EncodeError, got %v", result["code"])
	}
	if result["message"] != "loudness normalisation failed" {
		t.Errorf("expected message preserved, got %v", result["message"])
	}
	if _, present := result["details"]; present {
		t.Error("empty details should be omitted from the serialised shape")
	}
}

func TestErrorDetailNilValue(t *testing.T) {
	var e *ErrorDetail
	data, err := e.Value()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("nil detail should serialise to SQL NULL, got %v", data)
	}
}

func TestJobStatusValues(t *testing.T) {
	statuses := []JobStatus{
		JobStatusQueued,
		JobStatusRunning,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty job status found")
		}
	}
}

func TestMediaStatusValues(t *testing.T) {
	statuses := []MediaStatus{
		MediaStatusRegistered,
		MediaStatusProbing,
		MediaStatusReady,
		MediaStatusFailed,
		MediaStatusDeleted,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty media status found")
		}
	}
}

func TestSegmentKindValues(t *testing.T) {
	kinds := []SegmentKind{SegmentKindKeep, SegmentKindSkip, SegmentKindTransition}
	for _, k := range kinds {
		if k == "" {
			t.Errorf("empty segment kind found")
		}
	}
}
