package persist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// record is a struct for codec testing.
type record struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
	Low   int      `json:"low"`
}

func sampleRecord() record {
	return record{Name: "run", Items: []string{"a", "b", "c"}, Low: 2}
}

func TestCodecs_Decode(t *testing.T) {
	t.Parallel()

	codecs := map[string]Codec{
		"json":     NewJSONCodec(),
		"gob":      NewGobCodec(),
		"json+lz4": NewLZ4Codec(NewJSONCodec()),
		"gob+lz4":  NewLZ4Codec(NewGobCodec()),
		"compact":  &JSONCodec{},
	}

	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			require.NoError(t, codec.Encode(&buf, sampleRecord()))

			var decoded record

			require.NoError(t, codec.Decode(&buf, &decoded))
			assert.Equal(t, sampleRecord(), decoded)
		})
	}
}

func TestExtensions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".json", NewJSONCodec().Extension())
	assert.Equal(t, ".gob", NewGobCodec().Extension())
	assert.Equal(t, ".json.lz4", NewLZ4Codec(NewJSONCodec()).Extension())
}

func TestJSONCodec_PrettyAndCompact(t *testing.T) {
	t.Parallel()

	var pretty, compact bytes.Buffer

	require.NoError(t, NewJSONCodec().Encode(&pretty, sampleRecord()))
	require.NoError(t, (&JSONCodec{}).Encode(&compact, sampleRecord()))

	assert.Contains(t, pretty.String(), defaultIndent)
	assert.LessOrEqual(t, strings.Count(compact.String(), "\n"), 1)
}

func TestJSONCodec_IgnoresUnknownFields(t *testing.T) {
	t.Parallel()

	var decoded record

	err := NewJSONCodec().Decode(strings.NewReader(`{"name":"x","future_field":true}`), &decoded)
	require.NoError(t, err)
	assert.Equal(t, "x", decoded.Name)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		codec   Codec
		wantMsg string
	}{
		{"json", NewJSONCodec(), "json decode"},
		{"gob", NewGobCodec(), "gob decode"},
		{"lz4", NewLZ4Codec(NewJSONCodec()), "lz4"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var decoded record

			err := tc.codec.Decode(strings.NewReader("not valid data{{{"), &decoded)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	// Channels and functions cannot be encoded.
	err := NewJSONCodec().Encode(&buf, make(chan int))
	require.ErrorContains(t, err, "json encode")

	err = NewGobCodec().Encode(&buf, func() {})
	require.ErrorContains(t, err, "gob encode")

	err = NewLZ4Codec(NewJSONCodec()).Encode(&buf, make(chan int))
	require.ErrorContains(t, err, "json encode")
}

func TestLZ4Codec_Compresses(t *testing.T) {
	t.Parallel()

	items := make([]string, 5000)
	for i := range items {
		items[i] = "0123456789abcdef0123456789abcdef01234567"
	}

	var plain, packed bytes.Buffer

	require.NoError(t, NewJSONCodec().Encode(&plain, record{Items: items}))
	require.NoError(t, NewLZ4Codec(NewJSONCodec()).Encode(&packed, record{Items: items}))

	assert.Less(t, packed.Len(), plain.Len()/4)
}

func TestForName(t *testing.T) {
	t.Parallel()

	codec, err := ForName("", false)
	require.NoError(t, err)
	assert.IsType(t, &JSONCodec{}, codec)

	codec, err = ForName(CodecGob, true)
	require.NoError(t, err)
	assert.Equal(t, ".gob.lz4", codec.Extension())

	_, err = ForName("xml", false)
	require.ErrorIs(t, err, ErrUnknownCodec)
}

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"state.0f3c.json", ".json"},
		{"/tmp/run/state.0f3c.gob", ".gob"},
		{"state.0f3c.json.lz4", ".json.lz4"},
		{"state.0f3c.gob.lz4", ".gob.lz4"},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()

			codec, err := ForExtension(tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, codec.Extension())
		})
	}

	for _, path := range []string{"state", "state.txt", "state.lz4"} {
		_, err := ForExtension(path)
		require.ErrorIs(t, err, ErrUnknownCodec, path)
	}
}
