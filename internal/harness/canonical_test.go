package harness

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"string", "Ada", `"Ada"`},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"nfc", "e\u0301", "\"\u00e9\""},
		{"int64", int64(-42), `-42`},
		{"int32", int32(7), `7`},
		{"integral float", 36.0, `36`},
		{"fraction", 12.5, `12.5`},
		{"bool", true, `true`},
		{"empty list", []any{}, `[]`},
		{"sorted keys", map[string]any{"seq": int64(1), "action": "x", "args": map[string]any{"b": "2", "a": "1"}}, `{"action":"x","args":{"a":"1","b":"2"},"seq":1}`},
		{"list of maps", []map[string]any{{"id": int64(1)}}, `[{"id":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonicalUTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as the surrogate pair D83D DE00, so it sorts before
	// U+FF5E in UTF-16 but after it in UTF-8 byte order.
	got, err := MarshalCanonical(map[string]any{"\U0001F600": int64(1), "～": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"～\":2}", string(got))
}

func TestMarshalCanonicalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input any
		msg   string
	}{
		{"null", nil, "null is forbidden"},
		{"nested null", map[string]any{"a": []any{nil}}, `object["a"]: array[0]: null is forbidden`},
		{"nan", math.NaN(), "non-finite"},
		{"unsupported", struct{}{}, "unsupported type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
