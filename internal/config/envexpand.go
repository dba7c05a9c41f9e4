package config

import "os"

// ExpandEnv expands environment variables in YAML content, shell-style
// (`${VAR}` and `$VAR`), grounded verbatim on tarsy's pkg/config/envexpand.go.
// Missing variables expand to empty string; Validate catches fields that
// end up empty and required.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
