package pack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLintPrompt_AcceptsWellFormedPrompt(t *testing.T) {
	body := "# System\n" +
		"You are a support agent.\n\n" +
		"## PCP\n" +
		"Plan, critique, proceed.\n\n" +
		"### User\n" +
		"```tool\n${tools.search}\n```\n" +
		"```json\n{\"q\": \"x\"}\n```\n"

	sections, diags := lintPrompt("agent.md", body, map[string]bool{"search": true}, true)
	require.Empty(t, diags)
	assert.Equal(t, []string{"search"}, sections.ToolRefs)
	assert.Contains(t, sections.System, "support agent")
}

func TestLintPrompt_RejectsOutOfOrderHeadings(t *testing.T) {
	body := "## PCP\nplan\n# System\nhello\n### User\nhi\n"
	_, diags := lintPrompt("agent.md", body, nil, false)
	require.NotEmpty(t, diags)
}

func TestLintPrompt_RejectsDisallowedFenceLanguage(t *testing.T) {
	body := "# System\nhi\n## PCP\nplan\n### User\nhi\n```python\nprint(1)\n```\n"
	_, diags := lintPrompt("agent.md", body, nil, false)
	found := false
	for _, d := range diags {
		if strings.Contains(d.Message, "not permitted") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLintPrompt_RejectsMultiplePayloadBlocksForOneTool(t *testing.T) {
	body := "# System\nhi\n## PCP\nplan\n### User\n" +
		"```tool\n${tools.search}\n```\n" +
		"```json\n{}\n```\n" +
		"```json\n{}\n```\n"
	_, diags := lintPrompt("agent.md", body, map[string]bool{"search": true}, false)
	found := false
	for _, d := range diags {
		if strings.Contains(d.Message, "multiple payload blocks") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLintPrompt_StrictRefsRejectsUnknownTool(t *testing.T) {
	body := "# System\nhi\n## PCP\nplan\n### User\n```tool\n${tools.ghost}\n```\n"
	_, diags := lintPrompt("agent.md", body, map[string]bool{}, true)
	found := false
	for _, d := range diags {
		if strings.Contains(d.Message, "unknown tool reference") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateMatrix_RejectsProfileOutsideAllowedTuples(t *testing.T) {
	m := Manifest{
		Settings: Settings{Matrix: Matrix{Allowed: []Tuple{{Retention: "short", Index: "none", Embeddings: "none", Format: "json"}}}},
		Profiles: map[string]Profile{
			"bad": {Retention: "long", Index: "vector", Embeddings: "openai", Format: "xml"},
		},
	}
	diags := validateMatrix(m)
	require.NotEmpty(t, diags)
}

func TestValidateMatrix_EnforceProfilesOnlyRejectsRawKnobs(t *testing.T) {
	m := Manifest{
		Settings: Settings{Matrix: Matrix{
			Allowed:             []Tuple{{Retention: "short", Index: "none", Embeddings: "none", Format: "json"}},
			EnforceProfilesOnly: true,
		}},
		Agents: map[string]Agent{
			"a1": {Retention: "short", Index: "none", Embeddings: "none", Format: "json"},
		},
	}
	diags := validateMatrix(m)
	require.NotEmpty(t, diags)
}

func TestCompile_EndToEnd_WellFormedPackSucceeds(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir)

	result := Compile(dir)
	require.Empty(t, result.Diagnostics, "%+v", result.Diagnostics)
	require.NotNil(t, result.Compiled)
	assert.Equal(t, "demo", result.Compiled.PackName)
	assert.Contains(t, result.Compiled.Agents, "support")
	assert.Equal(t, []string{"search"}, result.Compiled.Agents["support"].ToolIDs)
	format, ok := result.Compiled.ContextFormatFor("support")
	assert.True(t, ok)
	assert.Equal(t, "json", format)
}

func TestCompile_MissingPCPProducesDiagnosticNoCompiledConfig(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "support.md"), []byte("# System\nhi\n### User\nhi\n"), 0o644))

	result := Compile(dir)
	assert.Nil(t, result.Compiled)
	require.NotEmpty(t, result.Diagnostics)
}

func writePack(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))

	toml := `
[meta]
name = "demo"
version = "1.0.0"

[settings.matrix]
enforce_profiles_only = false
[[settings.matrix.allowed]]
retention = "short"
index = "none"
embeddings = "none"
format = "json"

[formats.json]
context_format = "json"

[toolsets]
core = ["search"]

[tools.search]
kind = "exec"
cmd = "search-bin"
timeout_ms = 2000

[agents.support]
retention = "short"
index = "none"
embeddings = "none"
format = "json"
toolset = "core"
prompt_file = "agents/support.md"

[routing]
strategy = "first"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cal.toml"), []byte(toml), 0o644))

	promptBody := "# System\n" +
		"You are a support agent.\n\n" +
		"## PCP\n" +
		"Plan, critique, proceed.\n\n" +
		"### User\n" +
		"```tool\n${tools.search}\n```\n" +
		"```json\n{\"q\": \"x\"}\n```\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "support.md"), []byte(promptBody), 0o644))
}

