package schema

import (
	"encoding/json"
	"testing"
)

func TestBloodModelVersion(t *testing.T) {
	got, err := BloodModelVersion()
	if err != nil {
		t.Fatalf("BloodModelVersion: %v", err)
	}
	if got == "" {
		t.Fatal("expected non-empty blood model version")
	}

	var doc fingerprintDoc
	if err := json.Unmarshal(bloodModelFingerprint, &doc); err != nil {
		t.Fatalf("unmarshal fingerprint: %v", err)
	}
	if got != doc.Version {
		t.Fatalf("version mismatch: got %q want %q", got, doc.Version)
	}
}

func TestBloodModelMetadata(t *testing.T) {
	got, err := BloodModelMetadata()
	if err != nil {
		t.Fatalf("BloodModelMetadata: %v", err)
	}
	if got.Status == "" || got.Source == "" {
		t.Fatalf("expected status and source, got %+v", got)
	}

	var doc metadataDoc
	if err := json.Unmarshal(bloodModelSchema, &doc); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if got.Status != doc.Metadata.Status || got.Source != doc.Metadata.Source {
		t.Fatalf("metadata mismatch: got %+v want %+v", got, doc.Metadata)
	}
}
