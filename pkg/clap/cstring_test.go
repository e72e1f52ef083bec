package clap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// cstr returns a NUL-terminated copy of s in Go memory.
func cstr(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}

// cstrArray returns a NUL-terminated array of C strings.
func cstrArray(ss ...string) **byte {
	arr := make([]*byte, 0, len(ss)+1)
	for _, s := range ss {
		arr = append(arr, cstr(s))
	}
	arr = append(arr, nil)
	return &arr[0]
}

func TestCString(t *testing.T) {
	b, err := cString("clap.plugin-factory")
	require.NoError(t, err)
	assert.Equal(t, byte(0), b[len(b)-1])
	assert.Equal(t, "clap.plugin-factory", string(b[:len(b)-1]))

	_, err = cString("bad\x00id")
	assert.ErrorIs(t, err, ErrInvalidString)

	_, err = cString("bad\xffid")
	assert.ErrorIs(t, err, ErrInvalidString)
}

func TestCString_Empty(t *testing.T) {
	b, err := cString("")
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, b)
}

func TestReadCString(t *testing.T) {
	s, ok, err := readCString(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, s)

	s, ok, err = readCString(cstr("Synth"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Synth", s)

	_, _, err = readCString(cstr("\xc3\x28"))
	assert.ErrorIs(t, err, ErrInvalidString)
}

func TestMandatoryString(t *testing.T) {
	s, err := mandatoryString(cstr("com.example.synth"), "id")
	require.NoError(t, err)
	assert.Equal(t, "com.example.synth", s)

	_, err = mandatoryString(nil, "id")
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.Contains(t, err.Error(), "'id'")

	_, err = mandatoryString(cstr(""), "name")
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.Contains(t, err.Error(), "'name'")

	_, err = mandatoryString(cstr("\xff"), "name")
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.ErrorIs(t, err, ErrInvalidString)
}

func TestOptionalString(t *testing.T) {
	s, err := optionalString(nil, "vendor")
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = optionalString(cstr(""), "vendor")
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = optionalString(cstr("Example Audio"), "vendor")
	require.NoError(t, err)
	assert.Equal(t, "Example Audio", s)

	_, err = optionalString(cstr("\xfe"), "vendor")
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.Contains(t, err.Error(), "'vendor'")
}

func TestStringArray(t *testing.T) {
	features, err := stringArray(cstrArray("instrument", "synthesizer", "stereo"), "features")
	require.NoError(t, err)
	assert.Equal(t, []string{"instrument", "synthesizer", "stereo"}, features)

	features, err = stringArray(cstrArray(), "features")
	require.NoError(t, err)
	assert.NotNil(t, features)
	assert.Empty(t, features)

	_, err = stringArray(nil, "features")
	assert.ErrorIs(t, err, ErrMalformedDescriptor)

	_, err = stringArray(cstrArray("audio-effect", "\xff"), "features")
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
	assert.Contains(t, err.Error(), "index 1")
}

func TestStringArray_Unterminated(t *testing.T) {
	arr := make([]*byte, maxFeatures+2)
	feature := cstr("mono")
	for i := range arr {
		arr[i] = feature
	}
	_, err := stringArray(&arr[0], "features")
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
}

func TestOptionalString_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.StringMatching(`[^\x00]*`).Draw(t, "in")
		s, err := optionalString(cstr(in), "description")
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", in, err)
		}
		if s != in {
			t.Fatalf("got %q, want %q", s, in)
		}
	})
}

func TestCString_RejectsNulProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.String().Draw(t, "prefix")
		suffix := rapid.String().Draw(t, "suffix")
		if _, err := cString(prefix + "\x00" + suffix); err == nil {
			t.Fatalf("expected error for embedded NUL")
		}
	})
}
