package pack

import (
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CompiledAgent is the runtime-ready form of one agent: its resolved
// context knobs, tool ids, and the rendered prompt AST.
type CompiledAgent struct {
	Name    string
	Knobs   Tuple
	ToolIDs []string
	System  string
	PCP     string
	Users   []string
}

// CompiledTool is a runtime-ready tool entry, with its contract already
// compiled to a validator (nil when the tool declares no contract).
type CompiledTool struct {
	ID       string
	Kind     string
	Cmd      string
	PromptMD string
	Contract *jsonschema.Schema `json:"-"` // rehydrated from the stored IR, not serialized
}

// CompiledConfig is the typed runtime artifact spec §4.10 names the
// "existing internal AST" target; the assembler and entity services read
// it, never the raw Manifest (spec §1's flow summary: "Tenant-wide
// configuration... is produced by the pack compiler and read by the
// assembler and entity services").
type CompiledConfig struct {
	PackName    string
	PackVersion string
	Agents      map[string]CompiledAgent
	Tools       map[string]CompiledTool
	Injections  map[string]NormalizedInjection
	Routing     ResolvedRouting
	Formats     map[string]Format
}

// ContextFormatFor resolves the `context_format` an agent's knobs name
// (via a `formats.*` entry), for the assembler to read when emitting a
// bundle (spec §4.8 step 5: "a serialized bundle honoring the
// pack-declared context_format"). Returns ok=false if the agent's Knobs.Format
// names no declared [formats.*] entry.
func (c *CompiledConfig) ContextFormatFor(agentName string) (string, bool) {
	agent, ok := c.Agents[agentName]
	if !ok {
		return "", false
	}
	f, ok := c.Formats[agent.Knobs.Format]
	if !ok {
		return "", false
	}
	return f.ContextFormat, true
}

// CompileResult is spec §4.10's output shape: "{compiled: CompiledConfig,
// diagnostics: [...], pack_source_ref}".
type CompileResult struct {
	Compiled      *CompiledConfig
	Diagnostics   []Diagnostic
	PackSourceRef string
}

// Compile runs all six stages of spec §4.10 over the pack directory at
// dir (which must contain cal.toml at its root). On any hard error no
// CompiledConfig is returned; diagnostics localize every failure found
// before returning, across every agent, not just the first.
func Compile(dir string) CompileResult {
	ir, diags := analyze(dir)
	if hasError(diags) {
		return CompileResult{Diagnostics: diags}
	}

	compiled := buildAST(ir)
	return CompileResult{
		Compiled:      compiled,
		Diagnostics:   diags,
		PackSourceRef: ir.Meta.Name + "@" + ir.Meta.Version,
	}
}

// analyze runs stages 1-5 (load, matrix, lint, tool resolution, IR
// lowering) without building the AST. Validate and Parse stop here;
// Compile continues into buildAST when no hard error was found.
func analyze(dir string) (IR, []Diagnostic) {
	manifestPath := filepath.Join(dir, "cal.toml")

	manifest, err := loadManifest(manifestPath)
	if err != nil {
		if ce, ok := err.(*CompileError); ok {
			return IR{}, ce.Diagnostics
		}
		return IR{}, []Diagnostic{errDiag(manifestPath, "%v", err)}
	}

	var diags []Diagnostic
	diags = append(diags, validateMatrix(manifest)...)

	knownTools := make(map[string]bool, len(manifest.Tools))
	for id := range manifest.Tools {
		knownTools[id] = true
	}
	strictRefs := true // spec §4.10 stage 3 default: unresolved refs are hard errors unless a pack opts out via policies.strict_refs=false
	if v, ok := manifest.Policies["strict_refs"]; ok {
		if b, ok := v.(bool); ok {
			strictRefs = b
		}
	}

	prompts := make(map[string]PromptSections, len(manifest.Agents))
	for _, name := range sortedAgentNames(manifest) {
		agent := manifest.Agents[name]
		if agent.PromptFile == "" {
			diags = append(diags, errDiag("cal.toml", "agent %q has no prompt_file", name))
			continue
		}
		body, err := readPromptFile(dir, agent.PromptFile)
		if err != nil {
			if ce, ok := err.(*CompileError); ok {
				diags = append(diags, ce.Diagnostics...)
			}
			continue
		}
		sections, lintDiags := lintPrompt(agent.PromptFile, body, knownTools, strictRefs)
		diags = append(diags, lintDiags...)
		diags = append(diags, resolveToolRegistry(manifest, agent.PromptFile, body, sections.ToolRefs)...)
		prompts[name] = sections
	}

	ir, irDiags := lowerToIR(manifest, prompts)
	diags = append(diags, irDiags...)
	return ir, diags
}

// sortedAgentNames returns a deterministic iteration order over manifest
// agents — compile diagnostics must not depend on Go's randomized map
// order (spec §8 determinism expectations carried into tooling output).
func sortedAgentNames(m Manifest) []string {
	names := make([]string, 0, len(m.Agents))
	for name := range m.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hasError(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// buildAST implements spec §4.10 stage 6: build the AST directly from IR
// (no text emission) and produce CompiledConfig. Tool contracts are
// compiled here; contracts of tools referenced from a prompt have already
// compiled once in tools.go's validateTool, other tools' contracts are
// first compiled here. buildAST reports no diagnostics: Contract is left
// nil if compilation fails rather than panicking, since a CompiledConfig
// must always be a value type safe to hand to callers.
func buildAST(ir IR) *CompiledConfig {
	cfg := &CompiledConfig{
		PackName:    ir.Meta.Name,
		PackVersion: ir.Meta.Version,
		Agents:      make(map[string]CompiledAgent, len(ir.Agents)),
		Tools:       make(map[string]CompiledTool, len(ir.Tools)),
		Injections:  ir.Injections,
		Routing:     ir.Routing,
		Formats:     ir.Formats,
	}

	for name, a := range ir.Agents {
		cfg.Agents[name] = CompiledAgent{
			Name:    a.Name,
			Knobs:   a.Knobs,
			ToolIDs: a.ToolIDs,
			System:  a.Prompt.System,
			PCP:     a.Prompt.PCP,
			Users:   a.Prompt.UserTurns,
		}
	}

	for id, t := range ir.Tools {
		ct := CompiledTool{ID: id, Kind: t.Kind, Cmd: t.Cmd, PromptMD: t.PromptMD}
		if t.Contract != "" {
			if schema, err := compileContract(t.Contract); err == nil {
				ct.Contract = schema
			}
		}
		cfg.Tools[id] = ct
	}

	return cfg
}
