package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Permissive, m)

	m, err = ParseMode("strict")
	require.NoError(t, err)
	assert.Equal(t, Strict, m)

	_, err = ParseMode("lenient")
	require.Error(t, err)
}

func TestMode_TextRoundTrip(t *testing.T) {
	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("strict")))
	assert.Equal(t, Strict, m)

	b, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "strict", string(b))
	assert.Equal(t, "Mode(7)", Mode(7).String())
}
