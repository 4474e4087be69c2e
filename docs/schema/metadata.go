// Package schema exposes embedded blood-model metadata (version) for runtime use.
package schema

import (
	_ "embed"
	"encoding/json"
	"sync"
)

type fingerprintDoc struct {
	Version string `json:"version"`
}

// Metadata captures the high-level metadata block from the canonical
// blood-model JSON.
type Metadata struct {
	Source string `json:"source"`
	Status string `json:"status"`
}

type metadataDoc struct {
	Metadata Metadata `json:"metadata"`
}

// Blood-model fingerprint content embedded for runtime metadata exposure.
//
//go:embed blood-model.fingerprint.json
var bloodModelFingerprint []byte

// Canonical blood-model JSON content embedded for accessing schema metadata.
//
//go:embed blood-model.json
var bloodModelSchema []byte

var (
	metaOnce sync.Once
	metaVer  string
	metaErr  error

	schemaOnce sync.Once
	schemaMeta Metadata
	schemaErr  error
)

// BloodModelVersion returns the canonical schema version declared in the
// fingerprint (source of truth: docs/schema/blood-model.json).
func BloodModelVersion() (string, error) {
	metaOnce.Do(func() {
		var fp fingerprintDoc
		metaErr = json.Unmarshal(bloodModelFingerprint, &fp)
		if metaErr == nil {
			metaVer = fp.Version
		}
	})
	return metaVer, metaErr
}

// BloodModelMetadata returns the schema metadata (status, source) declared in
// the canonical blood-model JSON.
func BloodModelMetadata() (Metadata, error) {
	schemaOnce.Do(func() {
		var doc metadataDoc
		schemaErr = json.Unmarshal(bloodModelSchema, &doc)
		if schemaErr == nil {
			schemaMeta = doc.Metadata
		}
	})
	return schemaMeta, schemaErr
}
