// Package chunk turns extracted report text into retrievable chunks.
package chunk

// Chunk size defaults, in characters.
const (
	DefaultChunkSize    = 256
	DefaultChunkOverlap = 100
)

// Section markers of lab report text.
const (
	ReportMarker   = "Test Report"
	TestNameMarker = "Test Name"
	PageBreak      = "\f"
)

// Strategy selects how text is split.
type Strategy string

const (
	// StrategyReport splits on report sections, falling back to pages and
	// then to recursive splitting.
	StrategyReport Strategy = "report"

	// StrategyRecursive splits the whole text recursively by size.
	StrategyRecursive Strategy = "recursive"
)

// Kind records which rule produced a chunk.
type Kind string

const (
	KindSection   Kind = "report_section"
	KindPage      Kind = "page"
	KindRecursive Kind = "recursive"
)

// MetaKind is the metadata key holding a chunk's Kind.
const MetaKind = "chunk_kind"

// Chunk is a retrievable unit of text with its metadata.
type Chunk struct {
	Content  string
	Kind     Kind
	Metadata map[string]any
}
