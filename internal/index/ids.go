package index

import (
	"crypto/md5"
	"fmt"

	"github.com/google/uuid"

	"github.com/Aman-CERP/medrag/internal/store"
)

// PointID derives the point id of the i-th document of an AddDocuments call
// from its source key: md5("<key>_<i>") rendered as a UUID string.
// The same key and position always give the same id, so re-ingesting a file
// overwrites its points.
func PointID(sourceKey string, i int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", sourceKey, i)))
	id, err := uuid.FromBytes(sum[:])
	if err != nil {
		// FromBytes only fails on a length other than 16.
		panic(err)
	}
	return id.String()
}

// SourceKey returns the file hash of metadata, falling back to the filename.
func SourceKey(metadata map[string]any) string {
	if h := store.PayloadString(metadata, store.FieldFileHash); h != "" {
		return h
	}
	return store.PayloadString(metadata, store.FieldFilename)
}
