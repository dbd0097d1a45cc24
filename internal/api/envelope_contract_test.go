package api

import (
	"encoding/json/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// marshalEnvelope runs v through the transformer and decodes the result
// into a generic map.
func marshalEnvelope(t *testing.T, status string, v any) map[string]any {
	t.Helper()
	result, err := EnvelopeTransformer(nil, status, v)
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEnvelopeContract_Success(t *testing.T) {
	out := marshalEnvelope(t, "200", map[string]string{"id": "cat-123", "name": "Jazz"})

	assert.Equal(t, float64(1), out["v"])
	assert.Equal(t, true, out["success"])
	assert.Equal(t, map[string]any{"id": "cat-123", "name": "Jazz"}, out["data"])
	for key := range out {
		assert.Contains(t, []string{"v", "success", "data"}, key, "unexpected field: %s", key)
	}
}

func TestEnvelopeContract_SuccessNullData(t *testing.T) {
	out := marshalEnvelope(t, "204", nil)

	assert.Equal(t, float64(1), out["v"])
	assert.Equal(t, true, out["success"])
	assert.NotContains(t, out, "data")
}

func TestEnvelopeContract_SimpleError(t *testing.T) {
	out := marshalEnvelope(t, "404", &APIError{Code: "NOT_FOUND", Message: "Resource not found"})

	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Resource not found", out["error"])
	assert.Equal(t, "NOT_FOUND", out["code"])
	assert.NotContains(t, out, "details")
	assert.NotContains(t, out, "data")
}

func TestEnvelopeContract_DetailedError(t *testing.T) {
	out := marshalEnvelope(t, "400", &APIError{
		Code:    "VALIDATION",
		Message: "validation failed",
		Details: map[string]string{"name": "name is required"},
	})

	assert.Equal(t, float64(1), out["v"])
	assert.Equal(t, false, out["success"])
	assert.IsType(t, "", out["error"])
	assert.Equal(t, map[string]any{"name": "name is required"}, out["details"])
}

// The version field is named exactly "v"; clients key on it.
func TestEnvelopeContract_VersionFieldName(t *testing.T) {
	out := marshalEnvelope(t, "200", nil)

	assert.Contains(t, out, "v")
	assert.NotContains(t, out, "version")
	assert.NotContains(t, out, "Version")
}
