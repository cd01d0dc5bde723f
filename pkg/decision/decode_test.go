package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damarr/helmsman/pkg/tools"
)

func TestDecode_ToolStep(t *testing.T) {
	raw := `{"action":"next_step","thinking":"need to fetch","type":"tool","tool":"web_fetch","args":{"url":"https://example.com"}}`

	action, err := Decode(raw)
	require.NoError(t, err)

	step, ok := action.(*NextStep)
	require.True(t, ok)
	assert.Equal(t, StepTool, step.Type)
	assert.Equal(t, "web_fetch", step.Tool)
	assert.Equal(t, "https://example.com", step.Args["url"])
	assert.Equal(t, tools.ResultModeAuto, step.OutputMode)
}

func TestDecode_MarkedEnvelopePreferred(t *testing.T) {
	raw := "Sure, here is my decision:\n" +
		"=====JSON_START=====\n" +
		`{"action":"complete","message":"done"}` + "\n" +
		"=====JSON_END=====\n" +
		"Let me know if you need anything else."

	action, err := Decode(raw)
	require.NoError(t, err)

	complete, ok := action.(*Complete)
	require.True(t, ok)
	assert.Equal(t, "done", complete.Message)
}

func TestDecode_FencedBlockFallback(t *testing.T) {
	raw := "```json\n{\"action\":\"complete\",\"message\":\"done\"}\n```"

	action, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, &Complete{Message: "done"}, action)
}

func TestDecode_AliasNormalization(t *testing.T) {
	raw := `{"action":"next_step","thinking":"go","tool_name":"search","arguments":{"q":"golang"}}`

	action, err := Decode(raw)
	require.NoError(t, err)

	step := action.(*NextStep)
	assert.Equal(t, StepTool, step.Type)
	assert.Equal(t, "search", step.Tool)
	assert.Equal(t, "golang", step.Args["q"])
}

func TestDecode_NestedStepHoisted(t *testing.T) {
	raw := `{"action":"next_step","thinking":"outer","step":{"type":"tool","tool":"search","args":{"q":"x"}}}`

	action, err := Decode(raw)
	require.NoError(t, err)

	step := action.(*NextStep)
	assert.Equal(t, "outer", step.Thinking)
	assert.Equal(t, "search", step.Tool)
}

func TestDecode_BatchWithEntryAliases(t *testing.T) {
	raw := `{"action":"next_step","thinking":"parallel work","tool_calls":[` +
		`{"name":"search","arguments":{"q":"a"}},` +
		`{"tool":"web_fetch","args":{"url":"b"},"output_mode":"persist"}]}`

	action, err := Decode(raw)
	require.NoError(t, err)

	step := action.(*NextStep)
	assert.Equal(t, StepToolBatch, step.Type)
	require.Len(t, step.Tools, 2)
	assert.Equal(t, "search", step.Tools[0].Tool)
	assert.Equal(t, "a", step.Tools[0].Args["q"])
	assert.Equal(t, tools.ResultModeAuto, step.Tools[0].OutputMode)
	assert.Equal(t, tools.ResultModePersist, step.Tools[1].OutputMode)
}

func TestDecode_TypeInferencePriority(t *testing.T) {
	raw := `{"action":"next_step","thinking":"t","tool":"search","args":{},"message":"also text"}`

	action, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, StepTool, action.(*NextStep).Type)

	raw = `{"action":"next_step","thinking":"t","question":"which one?","message":"text"}`

	action, err = Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, StepAskUser, action.(*NextStep).Type)
}

func TestDecode_ThinkingOnlyFails(t *testing.T) {
	raw := `{"action":"next_step","thinking":"I should probably call the search tool next"}`

	_, err := Decode(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to synthesize")
}

func TestDecode_MissingThinkingFails(t *testing.T) {
	raw := `{"action":"next_step","type":"tool","tool":"search"}`

	_, err := Decode(raw)
	assert.ErrorContains(t, err, "thinking")
}

func TestDecode_ObjectThinkingFlattened(t *testing.T) {
	raw := `{"action":"next_step","thinking":{"plan":"fetch first"},"type":"tool","tool":"search","args":{}}`

	action, err := Decode(raw)
	require.NoError(t, err)
	step := action.(*NextStep)
	assert.JSONEq(t, `{"plan":"fetch first"}`, step.Thinking)
}

func TestDecode_EmptyObjectThinkingCountsAsAbsent(t *testing.T) {
	raw := `{"action":"next_step","thinking":{},"type":"tool","tool":"search","args":{}}`

	_, err := Decode(raw)
	assert.ErrorContains(t, err, "thinking")
}

func TestDecode_LegacyRespondIsComplete(t *testing.T) {
	raw := `{"action":"respond","response":"X"}`

	action, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, &Complete{Message: "X"}, action)
}

func TestDecode_ArgsNormalization(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want map[string]interface{}
	}{
		{
			name: "json encoded string",
			raw:  `{"action":"next_step","thinking":"t","tool":"x","args":"{\"k\":\"v\"}"}`,
			want: map[string]interface{}{"k": "v"},
		},
		{
			name: "blank string",
			raw:  `{"action":"next_step","thinking":"t","tool":"x","args":"  "}`,
			want: map[string]interface{}{},
		},
		{
			name: "null",
			raw:  `{"action":"next_step","thinking":"t","tool":"x","args":null}`,
			want: map[string]interface{}{},
		},
		{
			name: "non object json string",
			raw:  `{"action":"next_step","thinking":"t","tool":"x","args":"42"}`,
			want: map[string]interface{}{"value": float64(42)},
		},
		{
			name: "unparseable string",
			raw:  `{"action":"next_step","thinking":"t","tool":"x","args":"not json at all"}`,
			want: map[string]interface{}{"input": "not json at all"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			action, err := Decode(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, action.(*NextStep).Args)
		})
	}
}

func TestDecode_InvalidOutputModeFails(t *testing.T) {
	raw := `{"action":"next_step","thinking":"t","tool":"x","output_mode":"forever"}`

	_, err := Decode(raw)
	assert.ErrorContains(t, err, "invalid output_mode")
}

func TestDecode_GuardrailStop(t *testing.T) {
	raw := `{"action":"guardrail_stop","reason":"policy_violation","message":"cannot continue"}`

	action, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, &GuardrailStop{Reason: "policy_violation", Message: "cannot continue"}, action)
}

func TestDecode_AskUser(t *testing.T) {
	raw := `{"action":"ask_user","question":"Which account?","context":"two matches","resume_to":"controller"}`

	action, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, &AskUser{Question: "Which account?", Context: "two matches", ResumeTo: "controller"}, action)
}

func TestDecode_MalformedJSONFails(t *testing.T) {
	_, err := Decode("this is not json")
	assert.ErrorContains(t, err, "failed to parse")
}

func TestDecode_UnknownActionFails(t *testing.T) {
	_, err := Decode(`{"action":"dance"}`)
	assert.ErrorContains(t, err, "unknown action")
}

func TestDecode_EmptyBatchFails(t *testing.T) {
	raw := `{"action":"next_step","thinking":"t","type":"tool_batch","tools":[]}`

	_, err := Decode(raw)
	assert.ErrorContains(t, err, "non-empty tools")
}
