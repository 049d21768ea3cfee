package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"b": 1,
		"a": "x",
		"c": []any{true, nil},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":[true,null]}`, string(data))
}

func TestMarshalCanonical_UTF16Ordering(t *testing.T) {
	// U+1F600 encodes to a surrogate pair starting 0xD83D, which sorts
	// before U+FB01 (0xFB01) in UTF-16 but after it in UTF-8.
	data, err := MarshalCanonical(map[string]any{
		"\ufb01":     1,
		"\U0001F600": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\ufb01\":1}", string(data))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	data, err := MarshalCanonical("<a & b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(data))
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	data, err := MarshalCanonical("x\u2028y")
	require.NoError(t, err)
	assert.Equal(t, "\"x\u2028y\"", string(data))

	// A literal backslash followed by u2028 text stays escaped.
	data, err = MarshalCanonical(`x\u2028y`)
	require.NoError(t, err)
	assert.Equal(t, `"x\\u2028y"`, string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	data, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(data))
}

func TestMarshalCanonical_Numbers(t *testing.T) {
	data, err := MarshalCanonical([]any{json.Number("12"), float64(1.5), int64(7)})
	require.NoError(t, err)
	assert.Equal(t, `[12,1.5,7]`, string(data))

	_, err = MarshalCanonical(json.Number("not-a-number"))
	assert.Error(t, err)
}

func TestMarshalCanonical_Unsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestRecord_EncodeRoundTrip(t *testing.T) {
	r, err := Decode([]byte(`{"z":1,"id":"p1","nested":{"b":2,"a":1}}`))
	require.NoError(t, err)

	data, err := r.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"id":"p1","nested":{"a":1,"b":2},"z":1}`, string(data))
}
