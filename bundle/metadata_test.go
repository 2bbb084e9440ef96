package bundle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata_KeepsRawObject(t *testing.T) {
	payload := []byte(`{"size":10.50,"dataTxId":"abc","name":"a"}`)
	m, err := ParseMetadata(payload)
	require.NoError(t, err)
	assert.Equal(t, "abc", m.DataTxID)
	assert.False(t, m.HasLinkedPayload())

	payload[2] = 'X'
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"size":10.50,"dataTxId":"abc","name":"a"}`, string(b))
}

func TestParseMetadata_RejectsNonObjects(t *testing.T) {
	for _, in := range []string{`[1,2]`, `"s"`, `3`, `null`, `{`} {
		_, err := ParseMetadata([]byte(in))
		requireKind(t, err, KindMetadata, "ANS-META-001")
	}
}

func TestMetadata_MarshalEmpty(t *testing.T) {
	b, err := json.Marshal(&Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}
