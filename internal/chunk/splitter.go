package chunk

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/Aman-CERP/medrag/internal/config"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// Options configures a Splitter.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Strategy     Strategy
}

// OptionsFrom maps the chunking section of cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		Strategy:     Strategy(cfg.Chunking.Strategy),
	}
}

// Splitter splits report text into chunks.
type Splitter struct {
	opts      Options
	recursive textsplitter.RecursiveCharacter
}

// NewSplitter creates a splitter. Zero sizes take the defaults.
func NewSplitter(opts Options) (*Splitter, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap == 0 {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyReport
	}

	if opts.ChunkSize < 0 || opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, merrors.ConfigError(
			fmt.Sprintf("chunk overlap %d must be smaller than chunk size %d", opts.ChunkOverlap, opts.ChunkSize), nil)
	}
	if opts.Strategy != StrategyReport && opts.Strategy != StrategyRecursive {
		return nil, merrors.ConfigError(fmt.Sprintf("unknown chunking strategy: %s", opts.Strategy), nil).
			WithSuggestion("valid options: report, recursive")
	}

	return &Splitter{
		opts: opts,
		recursive: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.ChunkSize),
			textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		),
	}, nil
}

// Strategy returns the configured strategy.
func (s *Splitter) Strategy() Strategy {
	return s.opts.Strategy
}

// Split returns the chunks of text in order. Blank text gives no chunks.
//
// The report strategy keeps each "Test Report" section that names a test.
// Text without such sections is split on page breaks, and single-page text
// is split recursively.
func (s *Splitter) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if s.opts.Strategy == StrategyReport {
		if chunks := reportSections(text); len(chunks) > 0 {
			return chunks, nil
		}
		if chunks := pages(text); len(chunks) > 1 {
			return chunks, nil
		}
	}
	return s.splitRecursive(text)
}

func reportSections(text string) []Chunk {
	parts := strings.Split(text, ReportMarker)
	var chunks []Chunk
	for _, section := range parts[1:] {
		if !strings.Contains(section, TestNameMarker) {
			continue
		}
		if trimmed := strings.TrimSpace(section); trimmed != "" {
			chunks = append(chunks, Chunk{Content: trimmed, Kind: KindSection})
		}
	}
	return chunks
}

func pages(text string) []Chunk {
	var chunks []Chunk
	for _, page := range strings.Split(text, PageBreak) {
		if trimmed := strings.TrimSpace(page); trimmed != "" {
			chunks = append(chunks, Chunk{Content: trimmed, Kind: KindPage})
		}
	}
	return chunks
}

func (s *Splitter) splitRecursive(text string) ([]Chunk, error) {
	parts, err := s.recursive.SplitText(text)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeChunkingFailed, "split text", err)
	}
	chunks := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			chunks = append(chunks, Chunk{Content: trimmed, Kind: KindRecursive})
		}
	}
	return chunks, nil
}
