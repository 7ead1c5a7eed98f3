package request

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingspanai/qarun/internal/workspace"
)

func TestDecodeHook(t *testing.T) {
	in, err := DecodeHook(strings.NewReader(`{"prompt": "check login -tsmoke"}`))
	require.NoError(t, err)
	assert.Equal(t, "check login -tsmoke", in.Prompt)
}

func TestDecodeHook_BadPayload(t *testing.T) {
	_, err := DecodeHook(strings.NewReader("not json"))
	require.Error(t, err)
}

func TestBuildHookOutput(t *testing.T) {
	req := Parse("check login -tsmoke")
	out := BuildHookOutput(req, workspace.ID("wingspanai-web"), "npm run test:smoke -- --grep @smoke")

	fields := out.HookSpecificOutput
	assert.Equal(t, HookEvent, fields.HookEventName)
	assert.Contains(t, fields.AdditionalContext, "wingspanai-web")
	assert.Contains(t, fields.AdditionalContext, "npm run test:smoke")
	assert.Equal(t, "Execute QA tests in wingspanai-web with scope 'smoke'. Original request: check login", fields.ReplacePrompt)
}

func TestBuildHookOutput_Undetected(t *testing.T) {
	req := Parse("do things -t")
	out := BuildHookOutput(req, workspace.Undetected, "npm run test:smoke")

	assert.Contains(t, out.HookSpecificOutput.AdditionalContext, "auto-detect")
	assert.Equal(t, "Execute QA tests. Original request: do things", out.HookSpecificOutput.ReplacePrompt)
}
