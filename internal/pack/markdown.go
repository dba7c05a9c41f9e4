package pack

import (
	"bufio"
	"regexp"
	"strings"
)

// No example repo in the retrieval pack ships a Markdown structure linter
// of this shape (ordered heading sequence + fenced-block-language
// allowlist + tool-reference grammar) — this stage is hand-rolled
// line-scanning over bufio.Scanner, the one justified stdlib-only piece
// of the pack compiler (see DESIGN.md).

var toolRefPattern = regexp.MustCompile(`^\$\{tools\.([A-Za-z0-9_.\-]+)\}$`)

var allowedFenceLang = map[string]bool{
	"tool": true, "json": true, "xml": true, "cal.context": true,
}

// PromptSections is the parsed, ordered structure of an agent's Markdown
// prompt (spec §4.10 stage 5 "parsed prompt sections").
type PromptSections struct {
	System    string
	PCP       string
	UserTurns []string
	ToolRefs  []string // tool ids referenced by ${tools.<id>} blocks, in order
}

// lintPrompt implements spec §4.10 stage 3. file is used only to localize
// diagnostics; strictRefs controls whether an unresolved ${tools.<id>}
// reference is a hard error here or deferred to tool-registry resolution.
func lintPrompt(file, content string, knownTools map[string]bool, strictRefs bool) (PromptSections, []Diagnostic) {
	var diags []Diagnostic
	var sections PromptSections

	const (
		stateBeforeSystem = iota
		stateSystem
		stateAfterSystem
		statePCP
		stateAfterPCP
		stateUser
	)
	state := stateBeforeSystem

	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNo := 0

	var curBody strings.Builder
	flushBody := func() string {
		s := curBody.String()
		curBody.Reset()
		return s
	}

	var pendingToolLine int
	var pendingToolRef string
	havePendingTool := false
	payloadSeenForPending := false

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "# System":
			if state != stateBeforeSystem {
				diags = append(diags, errDiagAt(file, lineNo, 1, "unexpected second '# System' heading"))
				break
			}
			state = stateSystem
			continue
		case trimmed == "## PCP":
			if state != stateAfterSystem && state != stateSystem {
				diags = append(diags, errDiagAt(file, lineNo, 1, "'## PCP' must follow '# System'"))
				break
			}
			if state == stateSystem {
				sections.System = strings.TrimSpace(flushBody())
			}
			state = statePCP
			continue
		case strings.HasPrefix(trimmed, "### User"):
			if state != stateAfterPCP && state != statePCP && state != stateUser {
				diags = append(diags, errDiagAt(file, lineNo, 1, "'### User' must follow '## PCP'"))
				break
			}
			if state == statePCP {
				sections.PCP = strings.TrimSpace(flushBody())
			} else if state == stateUser {
				sections.UserTurns = append(sections.UserTurns, strings.TrimSpace(flushBody()))
			}
			state = stateUser
			continue
		case strings.HasPrefix(trimmed, "```"):
			lang := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			if lang == "" {
				// closing fence
				break
			}
			if !allowedFenceLang[lang] {
				diags = append(diags, errDiagAt(file, lineNo, 1, "fenced block language %q is not permitted (allowed: tool, json, xml, cal.context)", lang))
				continue
			}
			if lang == "tool" {
				ref, refLine, refDiags := scanToolBlock(scanner, file, &lineNo)
				diags = append(diags, refDiags...)
				if ref != "" {
					if strictRefs && knownTools != nil && !knownTools[ref] {
						diags = append(diags, errDiagAt(file, refLine, 1, "unknown tool reference %q (strict_refs=true)", ref))
					}
					sections.ToolRefs = append(sections.ToolRefs, ref)
					pendingToolRef = ref
					pendingToolLine = refLine
					havePendingTool = true
					payloadSeenForPending = false
				}
				continue
			}
			if lang == "json" || lang == "xml" {
				if havePendingTool {
					if payloadSeenForPending {
						diags = append(diags, errDiagAt(file, lineNo, 1, "multiple payload blocks follow tool block %q at line %d", pendingToolRef, pendingToolLine))
					}
					payloadSeenForPending = true
				}
				consumeFencedBody(scanner, &lineNo)
				continue
			}
			consumeFencedBody(scanner, &lineNo)
			continue
		}

		curBody.WriteString(line)
		curBody.WriteString("\n")
	}

	switch state {
	case stateBeforeSystem, stateSystem:
		diags = append(diags, errDiag(file, "prompt must contain '# System', '## PCP', and at least one '### User' section, in order"))
	case statePCP:
		sections.PCP = strings.TrimSpace(flushBody())
		diags = append(diags, errDiag(file, "prompt is missing at least one '### User' section"))
	case stateUser:
		sections.UserTurns = append(sections.UserTurns, strings.TrimSpace(flushBody()))
	case stateAfterSystem, stateAfterPCP:
		diags = append(diags, errDiag(file, "prompt is incomplete"))
	}

	return sections, diags
}

// scanToolBlock reads the body of a ```tool fenced block, which must hold
// exactly one ${tools.<id>} reference line, and returns the referenced id.
func scanToolBlock(scanner *bufio.Scanner, file string, lineNo *int) (ref string, refLine int, diags []Diagnostic) {
	count := 0
	for scanner.Scan() {
		*lineNo++
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "```") {
			return ref, refLine, diags
		}
		if line == "" {
			continue
		}
		if m := toolRefPattern.FindStringSubmatch(line); m != nil {
			count++
			if count > 1 {
				diags = append(diags, errDiagAt(file, *lineNo, 1, "tool block holds more than one ${tools.<id>} reference"))
				continue
			}
			ref = m[1]
			refLine = *lineNo
		} else {
			diags = append(diags, errDiagAt(file, *lineNo, 1, "tool block line %q is not a ${tools.<id>} reference", line))
		}
	}
	return ref, refLine, diags
}

func consumeFencedBody(scanner *bufio.Scanner, lineNo *int) {
	for scanner.Scan() {
		*lineNo++
		if strings.HasPrefix(strings.TrimSpace(scanner.Text()), "```") {
			return
		}
	}
}
