// Пакет openapi — OpenAPI контракт HTTP API Consult Portal.
package openapi

import _ "embed"

// Spec — OpenAPI 3 контракт в формате YAML.
//
//go:embed openapi.yaml
var Spec []byte
