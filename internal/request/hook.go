package request

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/wingspanai/qarun/internal/workspace"
)

// HookEvent is the prompt-submit event this tool integrates with.
const HookEvent = "UserPromptSubmit"

// HookInput is the payload the prompt hook delivers on stdin.
type HookInput struct {
	Prompt string `json:"prompt"`
}

// HookOutput is the advisory response printed for the hook runner.
type HookOutput struct {
	HookSpecificOutput HookFields `json:"hookSpecificOutput"`
}

type HookFields struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
	ReplacePrompt     string `json:"replacePrompt,omitempty"`
}

// DecodeHook reads a hook payload.
func DecodeHook(r io.Reader) (HookInput, error) {
	var in HookInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return HookInput{}, fmt.Errorf("decoding hook payload: %w", err)
	}
	return in, nil
}

// BuildHookOutput renders the advisory context for a detected test marker:
// the resolved configuration and the replacement prompt, without executing
// anything.
func BuildHookOutput(req Request, id workspace.ID, command string) HookOutput {
	ws := string(id)
	if ws == "" {
		ws = "auto-detect"
	}
	sc := req.Scope
	if sc == "" {
		sc = "default"
	}

	replace := "Execute QA tests"
	if id != workspace.Undetected {
		replace += " in " + string(id)
	}
	if req.Scope != "" {
		replace += fmt.Sprintf(" with scope '%s'", req.Scope)
	}
	if req.Prompt != "" {
		replace += ". Original request: " + req.Prompt
	}

	context := fmt.Sprintf(
		"QA Test Runner activated.\nWorkspace: %s\nScope: %s\nCommand: %s\nUse qarun to execute; it validates prerequisites, retries once on failure, and reports artifact locations.",
		ws, sc, command)

	return HookOutput{HookSpecificOutput: HookFields{
		HookEventName:     HookEvent,
		AdditionalContext: context,
		ReplacePrompt:     replace,
	}}
}
