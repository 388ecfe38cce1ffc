package portschema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func marshalUnmarshal(s Schema) (Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return Schema{}, err
	}
	var out Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return Schema{}, err
	}
	return out, nil
}

func TestIsCompatibleWith_Primitives(t *testing.T) {
	require.True(t, String().IsCompatibleWith(String()))
	require.False(t, String().IsCompatibleWith(Number()))
	require.True(t, Any().IsCompatibleWith(String()))
	require.True(t, String().IsCompatibleWith(Any()))
	require.True(t, Any().IsCompatibleWith(Any()))
}

func TestIsCompatibleWith_Reflexive(t *testing.T) {
	schemas := []Schema{
		Any(), String(), Number(), Boolean(),
		Array(String()),
		Object(map[string]Field{"a": {Schema: String(), Required: true}}),
	}
	for _, s := range schemas {
		require.True(t, s.IsCompatibleWith(s), "schema %+v should be self-compatible", s)
	}
}

func TestIsCompatibleWith_Array(t *testing.T) {
	require.True(t, Array(String()).IsCompatibleWith(Array(String())))
	require.False(t, Array(String()).IsCompatibleWith(Array(Number())))
	require.True(t, Array(String()).IsCompatibleWith(Array(Any())))
	// absent inner treated as any
	require.True(t, Array(String()).IsCompatibleWith(Schema{Kind: KindArray}))
}

func TestIsCompatibleWith_ObjectWidthSubtyping(t *testing.T) {
	source := Object(map[string]Field{
		"count": {Schema: Number(), Required: true},
		"extra": {Schema: String(), Required: true},
	})
	target := Object(map[string]Field{
		"count": {Schema: Number(), Required: true},
	})
	require.True(t, source.IsCompatibleWith(target), "extra source fields must be allowed")
}

func TestIsCompatibleWith_ObjectMissingRequiredField(t *testing.T) {
	// Source port schema object{count:number}, target object{count:number,
	// note:string(required)} must fail.
	source := Object(map[string]Field{
		"count": {Schema: Number(), Required: true},
	})
	target := Object(map[string]Field{
		"count": {Schema: Number(), Required: true},
		"note":  {Schema: String(), Required: true},
	})
	require.False(t, source.IsCompatibleWith(target))
}

func TestIsCompatibleWith_ObjectOptionalFieldNotRequired(t *testing.T) {
	source := Object(map[string]Field{
		"count": {Schema: Number(), Required: true},
	})
	target := Object(map[string]Field{
		"count": {Schema: Number(), Required: true},
		"note":  {Schema: String(), Required: false},
	})
	require.True(t, source.IsCompatibleWith(target))
}

func TestIsCompatibleWith_JSONStructural(t *testing.T) {
	a := JSON([]byte(`{"type":"object"}`))
	b := JSON([]byte(`{"type":"object"}`))
	c := JSON([]byte(`{"type":"string"}`))
	require.True(t, a.IsCompatibleWith(b))
	require.False(t, a.IsCompatibleWith(c))
	require.True(t, a.IsCompatibleWith(Any()))
	require.False(t, a.IsCompatibleWith(String()))
}

func TestIsCompatibleWith_RoundTripStable(t *testing.T) {
	s := Object(map[string]Field{
		"a": {Schema: Array(String()), Required: true},
	})
	data, err := marshalUnmarshal(s)
	require.NoError(t, err)
	require.True(t, s.IsCompatibleWith(data))
	require.True(t, data.IsCompatibleWith(s))
}
