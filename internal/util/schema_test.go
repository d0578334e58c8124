package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routeArgs struct {
	Route  string   `json:"route" enum:"a|b|c" description:"target"`
	Reason string   `json:"reason,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(routeArgs{})

	props := schema["properties"].(map[string]any)
	route := props["route"].(map[string]any)
	assert.Equal(t, "string", route["type"])
	assert.Equal(t, []string{"a", "b", "c"}, route["enum"])
	assert.Equal(t, "target", route["description"])

	tags := props["tags"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string"}, tags["items"])

	assert.Equal(t, []string{"route"}, schema["required"])
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(routeArgs{})

	require.NoError(t, ValidateParameters(map[string]any{"route": "b"}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "route", ve.Field)

	err = ValidateParameters(map[string]any{"route": "z"}, schema)
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "must be one of")

	err = ValidateParameters(map[string]any{"route": 3.0}, schema)
	require.ErrorAs(t, err, &ve)

	// Schemas decoded from JSON carry []any for required.
	decoded := map[string]any{"required": []any{"x"}, "properties": map[string]any{}}
	assert.Error(t, ValidateParameters(map[string]any{}, decoded))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Trip to {{.location}} & back:\n{{numbered .steps}}", map[string]any{
		"location": "Paris",
		"steps":    []string{"fly", "eat"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Trip to Paris & back:\n1. fly\n2. eat", out)

	plain, err := RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", plain)
}
