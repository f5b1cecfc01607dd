package index

import (
	"crypto/md5"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/medrag/internal/store"
)

func TestPointID_IsMD5OfKeyAndPosition(t *testing.T) {
	sum := md5.Sum([]byte("abc123_4"))
	want, err := uuid.FromBytes(sum[:])
	require.NoError(t, err)

	assert.Equal(t, want.String(), PointID("abc123", 4))
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("h", 0), PointID("h", 0))
	assert.NotEqual(t, PointID("h", 0), PointID("h", 1))
	assert.NotEqual(t, PointID("h", 0), PointID("g", 0))

	_, err := uuid.Parse(PointID("h", 0))
	assert.NoError(t, err, "ids are valid UUIDs for qdrant")
}

func TestSourceKey(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]any
		want string
	}{
		{"hash wins", map[string]any{store.FieldFileHash: "h1", store.FieldFilename: "a.txt"}, "h1"},
		{"filename fallback", map[string]any{store.FieldFilename: "a.txt"}, "a.txt"},
		{"empty hash falls back", map[string]any{store.FieldFileHash: "", store.FieldFilename: "a.txt"}, "a.txt"},
		{"none", map[string]any{store.FieldUserID: "u1"}, ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceKey(tt.meta))
		})
	}
}
