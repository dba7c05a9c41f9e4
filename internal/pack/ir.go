package pack

import "fmt"

// ResolvedAgent is an agent entry with its profile expanded to concrete
// knobs, its toolset expanded to tool ids, and its prompt parsed into
// sections (spec §4.10 stage 5: "resolved agents (profile expanded to
// concrete knobs), expanded toolsets (tool ids), parsed prompt sections").
type ResolvedAgent struct {
	Name     string
	Knobs    Tuple
	ToolIDs  []string
	Prompt   PromptSections
}

// NormalizedInjection mirrors Injection but with its entity_type already
// validated against the note/artifact enum.
type NormalizedInjection struct {
	Name       string
	EntityType string
	Priority   int32
}

// ResolvedRouting is Routing after strategy/provider validation.
type ResolvedRouting struct {
	Strategy  string
	Providers map[string]string
}

var validRoutingStrategies = map[string]bool{
	"first": true, "round_robin": true, "random": true, "least_latency": true,
}

// IR is the typed intermediate representation spec §4.10 stage 5 produces,
// handed to buildAST (stage 6) to produce a CompiledConfig.
type IR struct {
	Meta        Meta
	Agents      map[string]ResolvedAgent
	Injections  map[string]NormalizedInjection
	Routing     ResolvedRouting
	Tools       map[string]Tool
	Formats     map[string]Format
}

// lowerToIR implements spec §4.10 stage 5 over an already matrix- and
// tool-validated Manifest plus per-agent parsed prompts.
func lowerToIR(m Manifest, prompts map[string]PromptSections) (IR, []Diagnostic) {
	var diags []Diagnostic
	ir := IR{
		Meta:       m.Meta,
		Agents:     make(map[string]ResolvedAgent, len(m.Agents)),
		Injections: make(map[string]NormalizedInjection, len(m.Injections)),
		Tools:      m.Tools,
		Formats:    m.Formats,
	}

	for name, agent := range m.Agents {
		knobs, err := resolveTuple(m, agent)
		if err != nil {
			diags = append(diags, errDiag("cal.toml", "agent %q: %v", name, err))
			continue
		}
		var toolIDs []string
		if agent.Toolset != "" {
			ids, err := expandToolset(m, agent.Toolset)
			if err != nil {
				diags = append(diags, errDiag("cal.toml", "agent %q: %v", name, err))
				continue
			}
			toolIDs = ids
		}
		ir.Agents[name] = ResolvedAgent{
			Name:    name,
			Knobs:   knobs,
			ToolIDs: toolIDs,
			Prompt:  prompts[name],
		}
	}

	for name, inj := range m.Injections {
		if inj.EntityType != "note" && inj.EntityType != "artifact" {
			diags = append(diags, errDiag("cal.toml", "injections.%s: entity_type must be note or artifact, got %q", name, inj.EntityType))
			continue
		}
		ir.Injections[name] = NormalizedInjection{Name: name, EntityType: inj.EntityType, Priority: inj.Priority}
	}

	strategy := m.Routing.Strategy
	if strategy == "" {
		strategy = "first"
	}
	if !validRoutingStrategies[strategy] {
		diags = append(diags, errDiag("cal.toml", "routing.strategy %q must be one of first, round_robin, random, least_latency", strategy))
	}
	for capability, provider := range m.Routing.Providers {
		if provider == "" {
			diags = append(diags, errDiag("cal.toml", "routing.providers.%s references an empty provider name", capability))
		}
	}
	ir.Routing = ResolvedRouting{Strategy: strategy, Providers: m.Routing.Providers}

	return ir, diags
}

func (ir IR) String() string {
	return fmt.Sprintf("IR{pack=%s@%s, agents=%d, tools=%d}", ir.Meta.Name, ir.Meta.Version, len(ir.Agents), len(ir.Tools))
}
