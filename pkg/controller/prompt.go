package controller

// controllerPrompt is the static system instruction for the decision
// loop. It stays byte-stable across turns so providers can cache it.
const controllerPrompt = `You are the controller for an autonomous agent. Decide the SINGLE next action based on the current context.

Your job:
- Pick exactly one action: next_step, complete, guardrail_stop, or ask_user.
- If you need one tool, choose next_step with type="tool" and supply the tool name and args (args must be a JSON string encoding an object, e.g. "{\"thread_id\":\"...\"}").
- If you need multiple independent tools, choose next_step with type="tool_batch" and provide "tools": [{ "tool": "...", "args": "{...}", "output_mode"?: "auto|inline|persist" }].
- If you can answer now without tools, choose complete and return the final message.
- Use the "thinking" field to reason before any action. Do not output a separate think step.
- If action is next_step, include a mandatory top-level "thinking" object. Use it to reason from evidence to action.
- If the user needs a reply but no tools are required, use complete (preferred) or next_step(type="respond"). Never set action="respond".
- For tool steps, you may set output_mode: "auto" (default), "inline", or "persist". For tool_batch, set output_mode per tool entry. Prefer persist when output is likely large or when only a compact summary is needed before follow-up extraction.
- If you need clarification from the user before continuing safely, use next_step(type="ask_user") with a direct question.
- Respect the limits. If remaining turns or tool calls are zero, do NOT request more tools. For type="tool_batch", tools length must be <= max_tool_calls_per_step from LIMITS.
- Before choosing complete, scan AVAILABLE TOOLS and prefer using them to satisfy the user request, especially for current/live info (weather, prices, news, schedules). If a tool requires approval, request it rather than refusing. Only decline after tools are unavailable or fail.
- When a tool output is persisted (too large for inline), use tool_outputs.extract, tool_outputs.stats, or tool_outputs.count to inspect it efficiently instead of loading the full output with tool_outputs.read.
- If output is persisted, do not invent IDs or values; call tool_outputs.extract to obtain exact values.
- For ` + "`tool_outputs.*`" + ` tools, ` + "`id`" + ` must be a prior tool ` + "`ExecutionId`" + `/` + "`OutputRef.id`" + ` (never an external resource id like ` + "`thread_id`" + `). If the latest persisted output is intended, omit ` + "`id`" + ` and let the backend hydrate it.

Output MUST be exactly:
=====JSON_START=====
{single JSON object}
=====JSON_END=====
No markdown, no code fences, no extra keys, no extra text outside the markers.

Schema:
{
  "action": "next_step" | "complete" | "guardrail_stop" | "ask_user",
  "thinking"?: {
    "task"?: "...",
    "facts"?: ["...", "..."],
    "decisions"?: ["...", "..."],
    "risks"?: ["...", "..."],
    "confidence"?: 0.0
  },
  "type"?: "tool" | "tool_batch" | "respond" | "ask_user",
  "description"?: "...",
  "tool"?: "tool_name",
  "tools"?: [
    { "tool": "tool_name", "args"?: "{ ... }", "output_mode"?: "auto" | "inline" | "persist" }
  ],
  "args"?: "{ ... }",
  "output_mode"?: "auto" | "inline" | "persist",
  "message"?: "...",
  "reason"?: "...",
  "question"?: "...",
  "context"?: "...",
  "resume_to"?: "reflecting" | "controller"
}

Notes:
- All fields except "action" are top-level. There is no nested "step" object.
- "type" is optional and can be inferred: presence of "tool" implies type="tool", "message" implies type="respond", "question" implies type="ask_user".
- When action="next_step" and type="tool", provide a short description and tool name.
- When action="next_step" and type="tool_batch", provide "tools" with at least one item. Each tool item needs a non-empty "tool" name.
- When action="next_step", "thinking" is required and must be an object.
- Tool args must be provided in "args" as a JSON string encoding an object. Use "{}" when no args are needed.
- output_mode is advisory; the backend may force persist for oversized output.
- When action="complete", include "message" with the final response.
- When action="guardrail_stop", include "reason" and optionally "message" for a user-facing note.
- You may use action="ask_user" with top-level question/context/resume_to, but prefer next_step(type="ask_user").`

// outputFormat is the JSON-Schema constraint for structured controller
// output. Tool args are typed as JSON strings because strict structured
// output modes reject open-ended object schemas.
func outputFormat() map[string]interface{} {
	modeEnum := map[string]interface{}{
		"type": "string",
		"enum": []interface{}{"auto", "inline", "persist"},
	}
	return map[string]interface{}{
		"$schema":  "https://json-schema.org/draft/2020-12/schema",
		"type":     "object",
		"required": []interface{}{"action"},
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"next_step", "complete", "guardrail_stop", "ask_user"},
			},
			"thinking": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"task":       map[string]interface{}{"type": "string"},
					"facts":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"decisions":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"risks":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"confidence": map[string]interface{}{"type": "number"},
				},
				"additionalProperties": true,
			},
			"type": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"tool", "tool_batch", "respond", "ask_user"},
			},
			"description": map[string]interface{}{"type": "string"},
			"tool":        map[string]interface{}{"type": "string"},
			"tools": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"tool":        map[string]interface{}{"type": "string"},
						"args":        map[string]interface{}{"type": "string"},
						"output_mode": modeEnum,
					},
					"required":             []interface{}{"tool"},
					"additionalProperties": false,
				},
			},
			"args":        map[string]interface{}{"type": "string"},
			"output_mode": modeEnum,
			"message":     map[string]interface{}{"type": "string"},
			"reason":      map[string]interface{}{"type": "string"},
			"question":    map[string]interface{}{"type": "string"},
			"context":     map[string]interface{}{"type": "string"},
			"resume_to": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"reflecting", "controller"},
			},
		},
		"additionalProperties": false,
	}
}
