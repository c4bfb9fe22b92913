package metadata_test

import (
	"testing"

	"github.com/akawashiro/ros3fs/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	xs := []metadata.ObjectEntry{
		{Path: "/x", Size: 1, MtimeMS: 10},
		{Path: "/y", Size: 2, MtimeMS: 20},
	}

	encoded, err := metadata.Encode(xs)
	require.NoError(t, err)

	decoded, err := metadata.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, xs, decoded)
}

func TestDecodeLegacySnapshotDefaultsMtime(t *testing.T) {
	legacy := []byte(`[{"path":"/a/b.txt","size":5},{"path":"/e.txt","size":3}]`)

	decoded, err := metadata.Decode(legacy)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	assert.Equal(t, int64(0), decoded[0].MtimeMS)
	assert.Equal(t, int64(0), decoded[1].MtimeMS)
	assert.Equal(t, uint64(5), decoded[0].Size)
}

func TestDecodeMalformedJSONIsSnapshotCorrupt(t *testing.T) {
	_, err := metadata.Decode([]byte(`not json`))
	require.Error(t, err)

	var corrupt *metadata.SnapshotCorrupt
	assert.ErrorAs(t, err, &corrupt)
}

func TestDecodeMissingFieldIsSnapshotCorrupt(t *testing.T) {
	_, err := metadata.Decode([]byte(`[{"size": 1}]`))
	require.Error(t, err)

	var corrupt *metadata.SnapshotCorrupt
	assert.ErrorAs(t, err, &corrupt)
}

func TestEncodeEmpty(t *testing.T) {
	encoded, err := metadata.Encode(nil)
	require.NoError(t, err)

	decoded, err := metadata.Decode(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
