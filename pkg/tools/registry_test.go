package tools

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echoes its input back",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
			{Name: "repeat", Type: "integer", Description: "Repeat count"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (Result, error) {
			return Ok(args["text"]), nil
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	require.NoError(t, registry.Register(echoTool()))

	def, ok := registry.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", def.Name)
	assert.False(t, def.RequiresApproval)

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	err := registry.Register(Definition{Handler: func(context.Context, map[string]interface{}) (Result, error) {
		return Ok(nil), nil
	}})
	assert.ErrorContains(t, err, "tool name is required")

	err = registry.Register(Definition{Name: "no_handler"})
	assert.ErrorContains(t, err, "no handler")
}

func TestRegistry_ValidateArgs(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	require.NoError(t, registry.Register(echoTool()))

	assert.NoError(t, registry.ValidateArgs("echo", map[string]interface{}{"text": "hi"}))
	assert.NoError(t, registry.ValidateArgs("echo", map[string]interface{}{"text": "hi", "repeat": 3}))

	err := registry.ValidateArgs("echo", map[string]interface{}{})
	assert.ErrorContains(t, err, "invalid arguments")

	err = registry.ValidateArgs("echo", map[string]interface{}{"text": 42})
	assert.ErrorContains(t, err, "invalid arguments")

	err = registry.ValidateArgs("missing", nil)
	assert.ErrorContains(t, err, "unknown tool")
}

func TestRegistry_NamesSorted(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	for _, name := range []string{"zeta", "alpha", "midway"} {
		def := echoTool()
		def.Name = name
		require.NoError(t, registry.Register(def))
	}

	assert.Equal(t, []string{"alpha", "midway", "zeta"}, registry.Names())
}

func TestParseResultMode(t *testing.T) {
	assert.Equal(t, ResultModeInline, ParseResultMode("inline"))
	assert.Equal(t, ResultModePersist, ParseResultMode(" Persist "))
	assert.Equal(t, ResultModeAuto, ParseResultMode("auto"))
	assert.Equal(t, ResultModeAuto, ParseResultMode(""))
	assert.Equal(t, ResultModeAuto, ParseResultMode("bogus"))
}

func TestIsOutputAccess(t *testing.T) {
	assert.True(t, IsOutputAccess("tool_outputs.read"))
	assert.False(t, IsOutputAccess("web_fetch"))
	assert.False(t, IsOutputAccess("tool_outputs"))
}
