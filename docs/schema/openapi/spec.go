// Package openapi embeds the blood-model OpenAPI components for runtime
// distribution to surrounding API layers.
package openapi

import _ "embed"

// BloodModelSpec contains the OpenAPI components for the blood model.
//
//go:embed blood-model.yaml
var BloodModelSpec []byte

// Spec returns a defensive copy of the embedded blood-model OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), BloodModelSpec...)
}
