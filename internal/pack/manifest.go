// Package pack implements CALIBER's pack compiler (spec C10): it loads a
// pack directory's `cal.toml` manifest, validates the profile matrix,
// lints each agent's Markdown prompt, resolves the tool registry, and
// lowers the result to a typed intermediate representation and finally a
// CompiledConfig.
//
// The load → merge/resolve → validate pipeline shape is grounded on
// pkg/config/loader.go's Initialize/load/validate staging (tarsy), with
// TOML replacing YAML as the manifest format per spec §4.10 and
// `BurntSushi/toml` + `mitchellh/mapstructure` replacing `gopkg.in/yaml.v3`
// as the decode path (kadirpekel-hector uses mapstructure for loose
// section decoding the same way).
package pack

// Manifest is the typed decode of `cal.toml`'s top-level sections (spec
// §4.10 stage 1: "Load TOML into a typed manifest with sections: meta,
// defaults, settings.matrix, profiles.*, adapters.*, formats.*,
// policies.*, injections.*, routing, tools.*, toolsets.*, agents.*").
type Manifest struct {
	Meta     Meta                `toml:"meta" mapstructure:"meta"`
	Defaults map[string]any      `toml:"defaults" mapstructure:"defaults"`
	Settings Settings            `toml:"settings" mapstructure:"settings"`
	Profiles map[string]Profile  `toml:"profiles" mapstructure:"profiles"`
	Adapters map[string]any      `toml:"adapters" mapstructure:"adapters"`
	Formats  map[string]Format   `toml:"formats" mapstructure:"formats"`
	Policies map[string]any      `toml:"policies" mapstructure:"policies"`
	Injections map[string]Injection `toml:"injections" mapstructure:"injections"`
	Routing  Routing             `toml:"routing" mapstructure:"routing"`
	Tools    map[string]Tool     `toml:"tools" mapstructure:"tools"`
	Toolsets map[string][]string `toml:"toolsets" mapstructure:"toolsets"`
	Agents   map[string]Agent    `toml:"agents" mapstructure:"agents"`
}

// Meta carries pack identity (name/version), consumed by the compiled
// artifact's pack_source_ref linkage (spec §4.10 stage 6).
type Meta struct {
	Name    string `toml:"name" mapstructure:"name"`
	Version string `toml:"version" mapstructure:"version"`
}

// Settings holds settings.matrix, the allowed-tuple list and the
// enforce_profiles_only switch (spec §4.10 stage 2).
type Settings struct {
	Matrix Matrix `toml:"matrix" mapstructure:"matrix"`
}

// Matrix is `{retention, index, embeddings, format}` tuple validation
// config (spec §4.10 stage 2).
type Matrix struct {
	Allowed             []Tuple `toml:"allowed" mapstructure:"allowed"`
	EnforceProfilesOnly bool    `toml:"enforce_profiles_only" mapstructure:"enforce_profiles_only"`
}

// Tuple is one allowed `{retention, index, embeddings, format}` combination.
type Tuple struct {
	Retention  string `toml:"retention" mapstructure:"retention"`
	Index      string `toml:"index" mapstructure:"index"`
	Embeddings string `toml:"embeddings" mapstructure:"embeddings"`
	Format     string `toml:"format" mapstructure:"format"`
}

// Profile names one matrix tuple a pack's agents may reference by name
// instead of raw knobs (spec §4.10 stage 2).
type Profile struct {
	Retention  string `toml:"retention" mapstructure:"retention"`
	Index      string `toml:"index" mapstructure:"index"`
	Embeddings string `toml:"embeddings" mapstructure:"embeddings"`
	Format     string `toml:"format" mapstructure:"format"`
}

func (p Profile) tuple() Tuple {
	return Tuple{Retention: p.Retention, Index: p.Index, Embeddings: p.Embeddings, Format: p.Format}
}

// Format names a bundle serialization, referenced by name from a Profile
// or raw knob (spec §4.10's `formats.*` section, feeding assembler
// ContextFormat per spec §4.8 step 5).
type Format struct {
	ContextFormat string `toml:"context_format" mapstructure:"context_format"`
}

// Injection normalizes an entity injection rule; entity_type is restricted
// to note/artifact (spec §4.10 stage 5: "normalized injections including
// entity_type ∈ {note, artifact}").
type Injection struct {
	EntityType string `toml:"entity_type" mapstructure:"entity_type"`
	Priority   int32  `toml:"priority" mapstructure:"priority"`
}

// Routing holds the pack's provider-routing hints. lowerToIR checks the
// strategy against {first, round_robin, random, least_latency} and rejects
// an empty provider name; provider names are not checked against any list
// of declared providers.
type Routing struct {
	Strategy  string            `toml:"strategy" mapstructure:"strategy"`
	Providers map[string]string `toml:"providers" mapstructure:"providers"`
}

// Tool is one `[tools.<id>]` entry: either an exec tool (cmd, timeout_ms,
// capability flags) or a prompt tool (prompt_md, optional contract schema,
// result_format) per spec §4.10 stage 4.
type Tool struct {
	Kind            string `toml:"kind" mapstructure:"kind"`
	Cmd             string `toml:"cmd" mapstructure:"cmd"`
	TimeoutMS       int64  `toml:"timeout_ms" mapstructure:"timeout_ms"`
	AllowNetwork    bool   `toml:"allow_network" mapstructure:"allow_network"`
	AllowFS         bool   `toml:"allow_fs" mapstructure:"allow_fs"`
	AllowSubprocess bool   `toml:"allow_subprocess" mapstructure:"allow_subprocess"`
	PromptMD        string `toml:"prompt_md" mapstructure:"prompt_md"`
	Contract        string `toml:"contract" mapstructure:"contract"` // inline JSON Schema text
	ResultFormat    string `toml:"result_format" mapstructure:"result_format"`
}

const (
	ToolKindExec   = "exec"
	ToolKindPrompt = "prompt"
)

// Agent is one `[agents.<id>]` entry: a profile or raw knobs, a toolset
// reference, and the path to its Markdown prompt file.
type Agent struct {
	Profile    string `toml:"profile" mapstructure:"profile"`
	Retention  string `toml:"retention" mapstructure:"retention"`
	Index      string `toml:"index" mapstructure:"index"`
	Embeddings string `toml:"embeddings" mapstructure:"embeddings"`
	Format     string `toml:"format" mapstructure:"format"`
	Toolset    string `toml:"toolset" mapstructure:"toolset"`
	PromptFile string `toml:"prompt_file" mapstructure:"prompt_file"`
}

func (a Agent) usesProfile() bool { return a.Profile != "" }

func (a Agent) tuple() Tuple {
	return Tuple{Retention: a.Retention, Index: a.Index, Embeddings: a.Embeddings, Format: a.Format}
}
