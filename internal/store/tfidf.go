package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Keyword index defaults.
const (
	DefaultMaxFeatures = 1000
	DefaultMinNGram    = 1
	DefaultMaxNGram    = 2
)

// KeywordDocument is one corpus entry for a keyword rebuild.
type KeywordDocument struct {
	ID      string
	Content string
	Payload map[string]any
}

// KeywordHit is a keyword match with its TF-IDF cosine similarity in (0, 1].
type KeywordHit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// KeywordConfig configures the TF-IDF vectorizer.
type KeywordConfig struct {
	// MaxFeatures caps the vocabulary at the most frequent terms (default: 1000).
	MaxFeatures int

	// MinNGram and MaxNGram bound the n-gram range (default: 1, 2).
	MinNGram int
	MaxNGram int
}

// DefaultKeywordConfig returns the vectorizer settings for report text.
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{
		MaxFeatures: DefaultMaxFeatures,
		MinNGram:    DefaultMinNGram,
		MaxNGram:    DefaultMaxNGram,
	}
}

type termWeight struct {
	term   int
	weight float64
}

// keywordSnapshot is an immutable fitted state. ids, rows and payloads are
// index-aligned.
type keywordSnapshot struct {
	vocabulary map[string]int
	idf        []float64
	rows       [][]termWeight
	ids        []string
	payloads   []map[string]any
	corpus     []KeywordDocument
	builtAt    time.Time
}

var emptySnapshot = &keywordSnapshot{vocabulary: map[string]int{}}

// KeywordIndex is a TF-IDF index over the full corpus. Rebuilds are
// serialized and swap in a new snapshot atomically; Score runs lock-free
// against whichever snapshot it loads.
type KeywordIndex struct {
	cfg      KeywordConfig
	analyzer *Analyzer

	mu       sync.Mutex
	snapshot atomic.Pointer[keywordSnapshot]
}

// NewKeywordIndex creates an empty keyword index.
func NewKeywordIndex(cfg KeywordConfig) *KeywordIndex {
	if cfg.MaxFeatures <= 0 {
		cfg.MaxFeatures = DefaultMaxFeatures
	}
	if cfg.MinNGram <= 0 {
		cfg.MinNGram = DefaultMinNGram
	}
	if cfg.MaxNGram < cfg.MinNGram {
		cfg.MaxNGram = cfg.MinNGram
	}

	k := &KeywordIndex{
		cfg:      cfg,
		analyzer: NewAnalyzer(cfg.MinNGram, cfg.MaxNGram),
	}
	k.snapshot.Store(emptySnapshot)
	return k
}

// Rebuild refits the vocabulary and IDF over corpus and replaces the
// snapshot. An empty corpus installs the empty snapshot.
func (k *KeywordIndex) Rebuild(corpus []KeywordDocument) {
	k.mu.Lock()
	defer k.mu.Unlock()

	start := time.Now()
	snap := k.fit(corpus)
	k.snapshot.Store(snap)

	slog.Debug("keyword_index_rebuilt",
		slog.Int("documents", len(snap.ids)),
		slog.Int("vocabulary", len(snap.vocabulary)),
		slog.Duration("duration", time.Since(start)))
}

func (k *KeywordIndex) fit(corpus []KeywordDocument) *keywordSnapshot {
	if len(corpus) == 0 {
		return emptySnapshot
	}

	docTerms := make([]map[string]int, len(corpus))
	totals := make(map[string]int)
	for i, doc := range corpus {
		counts := make(map[string]int)
		for _, t := range k.analyzer.Terms(doc.Content) {
			counts[t]++
		}
		for t, c := range counts {
			totals[t] += c
		}
		docTerms[i] = counts
	}

	vocabulary := selectVocabulary(totals, k.cfg.MaxFeatures)

	df := make([]int, len(vocabulary))
	for _, counts := range docTerms {
		for t := range counts {
			if idx, ok := vocabulary[t]; ok {
				df[idx]++
			}
		}
	}

	n := float64(len(corpus))
	idf := make([]float64, len(vocabulary))
	for i, d := range df {
		idf[i] = math.Log((1+n)/(1+float64(d))) + 1
	}

	snap := &keywordSnapshot{
		vocabulary: vocabulary,
		idf:        idf,
		rows:       make([][]termWeight, len(corpus)),
		ids:        make([]string, len(corpus)),
		payloads:   make([]map[string]any, len(corpus)),
		corpus:     corpus,
		builtAt:    time.Now(),
	}
	for i, doc := range corpus {
		snap.rows[i] = weigh(docTerms[i], vocabulary, idf)
		snap.ids[i] = doc.ID
		snap.payloads[i] = doc.Payload
	}
	return snap
}

// selectVocabulary keeps the maxFeatures terms with the highest corpus
// frequency, ties broken alphabetically, and numbers them alphabetically.
func selectVocabulary(totals map[string]int, maxFeatures int) map[string]int {
	terms := make([]string, 0, len(totals))
	for t := range totals {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if totals[terms[i]] != totals[terms[j]] {
			return totals[terms[i]] > totals[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	sort.Strings(terms)

	vocabulary := make(map[string]int, len(terms))
	for i, t := range terms {
		vocabulary[t] = i
	}
	return vocabulary
}

// weigh builds an L2-normalized sparse tf*idf row sorted by term index.
func weigh(counts map[string]int, vocabulary map[string]int, idf []float64) []termWeight {
	row := make([]termWeight, 0, len(counts))
	var norm float64
	for t, c := range counts {
		idx, ok := vocabulary[t]
		if !ok {
			continue
		}
		w := float64(c) * idf[idx]
		row = append(row, termWeight{term: idx, weight: w})
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range row {
		row[i].weight /= norm
	}
	sort.Slice(row, func(i, j int) bool { return row[i].term < row[j].term })
	return row
}

// Score returns up to limit documents with positive similarity to query,
// highest first, ties in corpus order.
func (k *KeywordIndex) Score(query string, limit int) []KeywordHit {
	if limit <= 0 {
		return nil
	}

	snap := k.snapshot.Load()
	if len(snap.rows) != len(snap.ids) || len(snap.payloads) != len(snap.ids) {
		panic(fmt.Sprintf("keyword snapshot inconsistent: %d ids, %d rows, %d payloads",
			len(snap.ids), len(snap.rows), len(snap.payloads)))
	}
	if len(snap.ids) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, t := range k.analyzer.Terms(query) {
		counts[t]++
	}
	qrow := weigh(counts, snap.vocabulary, snap.idf)
	if len(qrow) == 0 {
		return nil
	}
	qweights := make(map[int]float64, len(qrow))
	for _, tw := range qrow {
		qweights[tw.term] = tw.weight
	}

	hits := make([]KeywordHit, 0)
	for i, row := range snap.rows {
		var dot float64
		for _, tw := range row {
			if qw, ok := qweights[tw.term]; ok {
				dot += qw * tw.weight
			}
		}
		if dot > 0 {
			hits = append(hits, KeywordHit{
				ID:      snap.ids[i],
				Score:   math.Min(dot, 1),
				Payload: clonePayload(snap.payloads[i]),
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Len returns the number of indexed documents.
func (k *KeywordIndex) Len() int {
	return len(k.snapshot.Load().ids)
}

// Empty reports whether the index has no documents.
func (k *KeywordIndex) Empty() bool {
	return k.Len() == 0
}

// IDs returns the indexed document ids in corpus order.
func (k *KeywordIndex) IDs() []string {
	ids := k.snapshot.Load().ids
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// VocabularySize returns the number of fitted terms.
func (k *KeywordIndex) VocabularySize() int {
	return len(k.snapshot.Load().vocabulary)
}

// BuiltAt returns when the current snapshot was fitted (zero if empty).
func (k *KeywordIndex) BuiltAt() time.Time {
	return k.snapshot.Load().builtAt
}

// keywordFile is the persisted form: the corpus and the settings it was
// fitted with. The matrix is refitted on load.
type keywordFile struct {
	Version int
	Config  KeywordConfig
	Corpus  []KeywordDocument
	BuiltAt time.Time
}

const keywordFileVersion = 1

// Save persists the current corpus to path (temp file + rename).
func (k *KeywordIndex) Save(path string) error {
	snap := k.snapshot.Load()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create keyword file: %w", err)
	}

	w := bufio.NewWriter(file)
	err = gob.NewEncoder(w).Encode(keywordFile{
		Version: keywordFileVersion,
		Config:  k.cfg,
		Corpus:  snap.corpus,
		BuiltAt: snap.builtAt,
	})
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode keyword index: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close keyword file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load replaces the index with the corpus saved at path.
// A missing file leaves the index unchanged and returns os.ErrNotExist.
func (k *KeywordIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close keyword file", slog.String("error", err.Error()))
		}
	}()

	var kf keywordFile
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&kf); err != nil {
		return fmt.Errorf("decode keyword index: %w", err)
	}
	if kf.Version != keywordFileVersion {
		return fmt.Errorf("keyword index version %d not supported", kf.Version)
	}

	k.Rebuild(kf.Corpus)
	return nil
}
