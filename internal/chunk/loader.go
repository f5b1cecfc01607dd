package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/store"
)

// DefaultMaxFileSize is the largest file LoadFile reads (50MB).
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// supportedExtensions are the extracted-text formats medrag ingests.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".text": true,
	".md":   true,
}

// Supported reports whether path has an ingestible extension.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// FileHash returns the hex sha256 of data.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LoadFile reads an extracted-text file and splits it. Every chunk carries
// filename, file_hash, user_id, chunk_id and total_chunks.
func LoadFile(path, userID string, s *Splitter) ([]Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, merrors.New(merrors.ErrCodeFileNotFound, "file not found", err).WithDetail("path", path)
		}
		return nil, merrors.IOError("stat file", err).WithDetail("path", path)
	}
	if info.Size() > DefaultMaxFileSize {
		return nil, merrors.New(merrors.ErrCodeFileTooLarge,
			fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), DefaultMaxFileSize), nil).
			WithDetail("path", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, merrors.IOError("read file", err).WithDetail("path", path)
	}
	if !utf8.Valid(data) {
		return nil, merrors.ValidationError("file is not UTF-8 text", nil).
			WithDetail("path", path).
			WithSuggestion("extract text from PDFs before ingesting")
	}

	return SplitDocument(string(data), filepath.Base(path), FileHash(data), userID, s)
}

// SplitDocument splits text and attaches the document metadata.
func SplitDocument(text, filename, fileHash, userID string, s *Splitter) ([]Chunk, error) {
	chunks, err := s.Split(text)
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].Metadata = map[string]any{
			store.FieldFilename:    filename,
			store.FieldFileHash:    fileHash,
			store.FieldUserID:      userID,
			store.FieldChunkID:     int64(i),
			store.FieldTotalChunks: int64(len(chunks)),
			MetaKind:               string(chunks[i].Kind),
		}
	}
	return chunks, nil
}
