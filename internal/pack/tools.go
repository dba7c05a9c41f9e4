package pack

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var envSecretPattern = "${ENV:"

// resolveToolRegistry implements spec §4.10 stage 4: every id referenced
// from a prompt's ```tool block must exist in [tools.*]; exec tools need
// cmd, prompt tools need prompt_md; a tool's inline `contract` (if set)
// must be a compilable JSON Schema; and the ${ENV:NAME} secret form may
// only appear in the TOML manifest, never inside a prompt's Markdown body.
func resolveToolRegistry(m Manifest, promptFile, promptBody string, referencedIDs []string) []Diagnostic {
	var diags []Diagnostic

	if strings.Contains(promptBody, envSecretPattern) {
		diags = append(diags, errDiag(promptFile, "prompt markdown contains a ${ENV:...} secret reference; this form is only honored in cal.toml"))
	}

	for _, id := range referencedIDs {
		tool, ok := m.Tools[id]
		if !ok {
			diags = append(diags, errDiag(promptFile, "referenced tool %q has no [tools.%s] entry", id, id))
			continue
		}
		diags = append(diags, validateTool(id, tool)...)
	}
	return diags
}

func validateTool(id string, t Tool) []Diagnostic {
	var diags []Diagnostic
	switch t.Kind {
	case ToolKindExec:
		if t.Cmd == "" {
			diags = append(diags, errDiag("cal.toml", "tool %q is kind=exec but has no cmd", id))
		}
	case ToolKindPrompt:
		if t.PromptMD == "" {
			diags = append(diags, errDiag("cal.toml", "tool %q is kind=prompt but has no prompt_md", id))
		}
	default:
		diags = append(diags, errDiag("cal.toml", "tool %q has unknown kind %q (expected exec or prompt)", id, t.Kind))
	}

	if t.Contract != "" {
		if _, err := compileContract(t.Contract); err != nil {
			diags = append(diags, errDiag("cal.toml", "tool %q contract is not a valid JSON Schema: %v", id, err))
		}
	}
	return diags
}

// compileContract compiles an inline JSON Schema document, used both to
// validate [tools.*] contracts at compile time and to validate a tool's
// result payload at call time. Grounded on goadesign-goa-ai's
// registry/service.go validatePayloadJSONAgainstSchema, which unmarshals
// the schema to an `any` before handing it to AddResource.
func compileContract(schemaText string) (*jsonschema.Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal([]byte(schemaText), &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	const resourceName = "contract.json"
	if err := c.AddResource(resourceName, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resourceName)
}

// ValidateToolResult validates a tool's JSON result payload against a
// compiled contract (used by the runtime tool executor, not the compiler
// itself, but grounded on the same goadesign-goa-ai helper).
func ValidateToolResult(schema *jsonschema.Schema, payloadJSON []byte) error {
	var payloadDoc any
	if err := json.Unmarshal(payloadJSON, &payloadDoc); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return schema.Validate(payloadDoc)
}

// expandToolset resolves a named toolset into its concrete tool ids,
// erroring if the toolset or any member tool is undeclared.
func expandToolset(m Manifest, name string) ([]string, error) {
	ids, ok := m.Toolsets[name]
	if !ok {
		return nil, fmt.Errorf("undefined toolset %q", name)
	}
	for _, id := range ids {
		if _, ok := m.Tools[id]; !ok {
			return nil, fmt.Errorf("toolset %q references undeclared tool %q", name, id)
		}
	}
	return ids, nil
}
