package pack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
)

// loadManifest implements spec §4.10 stage 1: decode `cal.toml` into a
// typed Manifest, rejecting unknown keys with a CompileError whose
// diagnostic names the offending key. BurntSushi/toml decodes the raw document into a
// generic map (preserving TOML's table nesting); mapstructure then
// performs the typed, unknown-key-rejecting decode into Manifest — the
// same "loose decode, then typed+validated" split kadirpekel-hector uses
// for its own config sections.
func loadManifest(path string) (Manifest, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return Manifest{}, &CompileError{Diagnostics: []Diagnostic{errDiag(path, "TOML parse error: %v", err)}}
	}

	var m Manifest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &m,
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("build manifest decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return Manifest{}, &CompileError{Diagnostics: []Diagnostic{errDiag(path, "unknown or malformed key: %v", err)}}
	}
	return m, nil
}

// readPromptFile resolves an agent's prompt_file relative to the pack
// directory and reads it whole — prompts are small, line-oriented
// documents lint() walks in a single pass.
func readPromptFile(packDir, promptFile string) (string, error) {
	full := filepath.Join(packDir, promptFile)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", &CompileError{Diagnostics: []Diagnostic{errDiag(full, "cannot read prompt file: %v", err)}}
	}
	return string(data), nil
}
