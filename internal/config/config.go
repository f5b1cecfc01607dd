package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AppName names the user config directory, project files and env prefix.
const AppName = "medrag"

// Project config file names, in lookup order.
var projectConfigFiles = []string{".medrag.yaml", ".medrag.yml", ".medrag.toml"}

// Config represents the complete medrag configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version" toml:"version"`
	DataDir     string            `yaml:"data_dir" json:"data_dir" toml:"data_dir"`
	Search      SearchConfig      `yaml:"search" json:"search" toml:"search"`
	Keyword     KeywordConfig     `yaml:"keyword" json:"keyword" toml:"keyword"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings" toml:"embeddings"`
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store" toml:"vector_store"`
	Index       IndexConfig       `yaml:"index" json:"index" toml:"index"`
	Chunking    ChunkingConfig    `yaml:"chunking" json:"chunking" toml:"chunking"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" json:"telemetry" toml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging" toml:"logging"`
}

// SearchConfig configures hybrid ranking.
// Weights are configurable via:
//  1. User config (~/.config/medrag/config.yaml)
//  2. Project config (.medrag.yaml)
//  3. Env vars (MEDRAG_VECTOR_WEIGHT, MEDRAG_KEYWORD_WEIGHT)
type SearchConfig struct {
	// VectorWeight scales the cosine similarity of vector hits (0.0-1.0).
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight" toml:"vector_weight"`

	// KeywordWeight scales the TF-IDF similarity of keyword hits (0.0-1.0).
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight" toml:"keyword_weight"`

	DefaultTopK int `yaml:"default_top_k" json:"default_top_k" toml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k" json:"max_top_k" toml:"max_top_k"`

	// CandidateMultiplier sizes each sub-search as top_k * multiplier.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier" toml:"candidate_multiplier"`

	// Timeout bounds a whole hybrid search (e.g. "10s").
	Timeout string `yaml:"timeout" json:"timeout" toml:"timeout"`

	// Boosts are additive bonuses for vector hits whose content matches.
	// An explicit empty list disables boosting.
	Boosts []BoostConfig `yaml:"boosts" json:"boosts" toml:"boosts"`
}

// BoostConfig declares a regex boost rule.
type BoostConfig struct {
	Name    string  `yaml:"name" json:"name" toml:"name"`
	Pattern string  `yaml:"pattern" json:"pattern" toml:"pattern"`
	Bonus   float64 `yaml:"bonus" json:"bonus" toml:"bonus"`
}

// KeywordConfig configures the TF-IDF keyword index.
type KeywordConfig struct {
	MaxFeatures int `yaml:"max_features" json:"max_features" toml:"max_features"`
	MinNGram    int `yaml:"min_ngram" json:"min_ngram" toml:"min_ngram"`
	MaxNGram    int `yaml:"max_ngram" json:"max_ngram" toml:"max_ngram"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of openai, gemini, ollama, static.
	Provider   string `yaml:"provider" json:"provider" toml:"provider"`
	Model      string `yaml:"model" json:"model" toml:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions" toml:"dimensions"`

	Timeout       string `yaml:"timeout" json:"timeout" toml:"timeout"`
	MaxInputChars int    `yaml:"max_input_chars" json:"max_input_chars" toml:"max_input_chars"`
	MaxRetries    int    `yaml:"max_retries" json:"max_retries" toml:"max_retries"`

	CacheSize int    `yaml:"cache_size" json:"cache_size" toml:"cache_size"`
	CacheTTL  string `yaml:"cache_ttl" json:"cache_ttl" toml:"cache_ttl"`

	// RequestsPerSecond throttles provider calls; 0 disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" toml:"requests_per_second"`

	// Keys are normally supplied through OPENAI_API_KEY / GEMINI_API_KEY.
	OpenAIAPIKey  string `yaml:"openai_api_key,omitempty" json:"-" toml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty" json:"openai_base_url,omitempty" toml:"openai_base_url"`
	GeminiAPIKey  string `yaml:"gemini_api_key,omitempty" json:"-" toml:"gemini_api_key"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host" toml:"ollama_host"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	// Backend is one of qdrant, badger, memory.
	Backend    string `yaml:"backend" json:"backend" toml:"backend"`
	Collection string `yaml:"collection" json:"collection" toml:"collection"`

	QdrantHost   string `yaml:"qdrant_host" json:"qdrant_host" toml:"qdrant_host"`
	QdrantPort   int    `yaml:"qdrant_port" json:"qdrant_port" toml:"qdrant_port"`
	QdrantAPIKey string `yaml:"qdrant_api_key,omitempty" json:"-" toml:"qdrant_api_key"`
	QdrantTLS    bool   `yaml:"qdrant_tls" json:"qdrant_tls" toml:"qdrant_tls"`

	// Path is the badger directory; empty means <data_dir>/vectors.
	Path string `yaml:"path" json:"path" toml:"path"`
}

// IndexConfig configures ingestion.
type IndexConfig struct {
	BatchSize      int `yaml:"batch_size" json:"batch_size" toml:"batch_size"`
	EmbedWorkers   int `yaml:"embed_workers" json:"embed_workers" toml:"embed_workers"`
	ScrollCap      int `yaml:"scroll_cap" json:"scroll_cap" toml:"scroll_cap"`
	ScrollPageSize int `yaml:"scroll_page_size" json:"scroll_page_size" toml:"scroll_page_size"`
	// WatchDebounce coalesces file events in `ingest --watch` (e.g. "500ms").
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce" toml:"watch_debounce"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap" toml:"chunk_overlap"`
	// Strategy is "report" (split on report sections first) or "recursive".
	Strategy string `yaml:"strategy" json:"strategy" toml:"strategy"`
}

// TelemetryConfig configures query telemetry.
type TelemetryConfig struct {
	Disabled bool `yaml:"disabled" json:"disabled" toml:"disabled"`
	// Path is the SQLite file; empty means <data_dir>/telemetry.db.
	Path string `yaml:"path" json:"path" toml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" toml:"level"`
	// File is the log file; empty means ~/.medrag/logs/medrag.log.
	File string `yaml:"file" json:"file" toml:"file"`
}

// DefaultMeasurementPattern matches lab values with clinical units.
const DefaultMeasurementPattern = `(?i)\b\d+\.?\d*\s*(mg/dL|g/dL|mmol/L|IU/L|%|/μL|mmHg|bpm|°[CF])\b`

var (
	validProviders = []string{"openai", "gemini", "ollama", "static"}
	validBackends  = []string{"qdrant", "badger", "memory"}
	validLevels    = []string{"debug", "info", "warn", "error"}
	validStrategy  = []string{"report", "recursive"}
)

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	return &Config{
		Version: 1,
		DataDir: ".medrag",
		Search: SearchConfig{
			VectorWeight:        0.7,
			KeywordWeight:       0.3,
			DefaultTopK:         5,
			MaxTopK:             100,
			CandidateMultiplier: 2,
			Timeout:             "10s",
			Boosts: []BoostConfig{{
				Name:    "measurement_value",
				Pattern: DefaultMeasurementPattern,
				Bonus:   0.1,
			}},
		},
		Keyword: KeywordConfig{
			MaxFeatures: 1000,
			MinNGram:    1,
			MaxNGram:    2,
		},
		Embeddings: EmbeddingsConfig{
			Provider:      "openai",
			Model:         "",
			Dimensions:    1536,
			Timeout:       "30s",
			MaxInputChars: 8000,
			MaxRetries:    2,
			CacheSize:     1000,
			CacheTTL:      "1h",
		},
		VectorStore: VectorStoreConfig{
			Backend:    "qdrant",
			Collection: "medical_reports",
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Index: IndexConfig{
			BatchSize:      100,
			EmbedWorkers:   workers,
			ScrollCap:      10000,
			ScrollPageSize: 100,
			WatchDebounce:  "500ms",
		},
		Chunking: ChunkingConfig{
			ChunkSize:    256,
			ChunkOverlap: 100,
			Strategy:     "report",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/medrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/medrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", AppName, "config.yaml")
	}
	return filepath.Join(home, ".config", AppName, "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/medrag/config.yaml)
//  3. Project config (.medrag.yaml, .medrag.yml or .medrag.toml in dir)
//  4. Environment variables (MEDRAG_*, OPENAI_API_KEY, GEMINI_API_KEY)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := ProjectConfigPath(dir); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ProjectConfigPath returns the first project config file found in dir, or "".
func ProjectConfigPath(dir string) string {
	for _, name := range projectConfigFiles {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// loadFile parses a YAML or TOML file and merges its non-zero values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if strings.HasSuffix(path, ".toml") {
		err = toml.Unmarshal(data, &parsed)
	} else {
		err = yaml.Unmarshal(data, &parsed)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	// Search. A zero weight from a file is indistinguishable from "unset";
	// use MEDRAG_*_WEIGHT to force zero.
	mergeFloat(&c.Search.VectorWeight, other.Search.VectorWeight)
	mergeFloat(&c.Search.KeywordWeight, other.Search.KeywordWeight)
	mergeInt(&c.Search.DefaultTopK, other.Search.DefaultTopK)
	mergeInt(&c.Search.MaxTopK, other.Search.MaxTopK)
	mergeInt(&c.Search.CandidateMultiplier, other.Search.CandidateMultiplier)
	mergeString(&c.Search.Timeout, other.Search.Timeout)
	if other.Search.Boosts != nil {
		c.Search.Boosts = other.Search.Boosts
	}

	// Keyword
	mergeInt(&c.Keyword.MaxFeatures, other.Keyword.MaxFeatures)
	mergeInt(&c.Keyword.MinNGram, other.Keyword.MinNGram)
	mergeInt(&c.Keyword.MaxNGram, other.Keyword.MaxNGram)

	// Embeddings
	mergeString(&c.Embeddings.Provider, other.Embeddings.Provider)
	mergeString(&c.Embeddings.Model, other.Embeddings.Model)
	mergeInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	mergeString(&c.Embeddings.Timeout, other.Embeddings.Timeout)
	mergeInt(&c.Embeddings.MaxInputChars, other.Embeddings.MaxInputChars)
	mergeInt(&c.Embeddings.MaxRetries, other.Embeddings.MaxRetries)
	mergeInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	mergeString(&c.Embeddings.CacheTTL, other.Embeddings.CacheTTL)
	mergeFloat(&c.Embeddings.RequestsPerSecond, other.Embeddings.RequestsPerSecond)
	mergeString(&c.Embeddings.OpenAIAPIKey, other.Embeddings.OpenAIAPIKey)
	mergeString(&c.Embeddings.OpenAIBaseURL, other.Embeddings.OpenAIBaseURL)
	mergeString(&c.Embeddings.GeminiAPIKey, other.Embeddings.GeminiAPIKey)
	mergeString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)

	// Vector store
	mergeString(&c.VectorStore.Backend, other.VectorStore.Backend)
	mergeString(&c.VectorStore.Collection, other.VectorStore.Collection)
	mergeString(&c.VectorStore.QdrantHost, other.VectorStore.QdrantHost)
	mergeInt(&c.VectorStore.QdrantPort, other.VectorStore.QdrantPort)
	mergeString(&c.VectorStore.QdrantAPIKey, other.VectorStore.QdrantAPIKey)
	if other.VectorStore.QdrantTLS {
		c.VectorStore.QdrantTLS = true
	}
	mergeString(&c.VectorStore.Path, other.VectorStore.Path)

	// Index
	mergeInt(&c.Index.BatchSize, other.Index.BatchSize)
	mergeInt(&c.Index.EmbedWorkers, other.Index.EmbedWorkers)
	mergeInt(&c.Index.ScrollCap, other.Index.ScrollCap)
	mergeInt(&c.Index.ScrollPageSize, other.Index.ScrollPageSize)
	mergeString(&c.Index.WatchDebounce, other.Index.WatchDebounce)

	// Chunking
	mergeInt(&c.Chunking.ChunkSize, other.Chunking.ChunkSize)
	mergeInt(&c.Chunking.ChunkOverlap, other.Chunking.ChunkOverlap)
	mergeString(&c.Chunking.Strategy, other.Chunking.Strategy)

	// Telemetry
	if other.Telemetry.Disabled {
		c.Telemetry.Disabled = true
	}
	mergeString(&c.Telemetry.Path, other.Telemetry.Path)

	// Logging
	mergeString(&c.Logging.Level, other.Logging.Level)
	mergeString(&c.Logging.File, other.Logging.File)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEDRAG_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("MEDRAG_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}

	envString(&c.Embeddings.Provider, "MEDRAG_EMBEDDINGS_PROVIDER")
	envString(&c.Embeddings.Model, "MEDRAG_EMBEDDINGS_MODEL")
	envString(&c.Embeddings.OllamaHost, "OLLAMA_HOST")
	envString(&c.Embeddings.OllamaHost, "MEDRAG_OLLAMA_HOST")
	envString(&c.Embeddings.OpenAIAPIKey, "OPENAI_API_KEY")
	envString(&c.Embeddings.OpenAIBaseURL, "OPENAI_BASE_URL")
	envString(&c.Embeddings.GeminiAPIKey, "GEMINI_API_KEY")

	envString(&c.VectorStore.Backend, "MEDRAG_VECTOR_BACKEND")
	envString(&c.VectorStore.Collection, "MEDRAG_COLLECTION")
	envString(&c.VectorStore.QdrantHost, "QDRANT_HOST")
	envString(&c.VectorStore.QdrantHost, "MEDRAG_QDRANT_HOST")
	envString(&c.VectorStore.QdrantAPIKey, "QDRANT_API_KEY")
	envString(&c.VectorStore.QdrantAPIKey, "MEDRAG_QDRANT_API_KEY")
	for _, key := range []string{"QDRANT_PORT", "MEDRAG_QDRANT_PORT"} {
		if v := os.Getenv(key); v != "" {
			if p, err := strconv.Atoi(v); err == nil && p > 0 {
				c.VectorStore.QdrantPort = p
			}
		}
	}

	envString(&c.DataDir, "MEDRAG_DATA_DIR")
	envString(&c.Logging.Level, "MEDRAG_LOG_LEVEL")

	if v := os.Getenv("MEDRAG_TELEMETRY_DISABLED"); v != "" {
		c.Telemetry.Disabled = strings.EqualFold(v, "true") || v == "1"
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("search.keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}
	if c.Search.DefaultTopK < 0 || c.Search.MaxTopK <= 0 {
		return fmt.Errorf("search.default_top_k must be >= 0 and search.max_top_k > 0")
	}
	if c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k (%d) exceeds search.max_top_k (%d)", c.Search.DefaultTopK, c.Search.MaxTopK)
	}
	if c.Search.CandidateMultiplier < 1 {
		return fmt.Errorf("search.candidate_multiplier must be >= 1, got %d", c.Search.CandidateMultiplier)
	}
	for _, b := range c.Search.Boosts {
		if b.Name == "" {
			return fmt.Errorf("search.boosts: every rule needs a name")
		}
		if _, err := regexp.Compile(b.Pattern); err != nil {
			return fmt.Errorf("search.boosts[%s]: invalid pattern: %w", b.Name, err)
		}
	}

	if c.Keyword.MaxFeatures <= 0 {
		return fmt.Errorf("keyword.max_features must be positive, got %d", c.Keyword.MaxFeatures)
	}
	if c.Keyword.MinNGram < 1 || c.Keyword.MaxNGram < c.Keyword.MinNGram {
		return fmt.Errorf("keyword ngram range (%d, %d) is invalid", c.Keyword.MinNGram, c.Keyword.MaxNGram)
	}

	if !oneOf(c.Embeddings.Provider, validProviders) {
		return fmt.Errorf("embeddings.provider must be one of %s, got %s",
			strings.Join(validProviders, ", "), c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.MaxInputChars <= 0 {
		return fmt.Errorf("embeddings.max_input_chars must be positive, got %d", c.Embeddings.MaxInputChars)
	}
	if c.Embeddings.RequestsPerSecond < 0 {
		return fmt.Errorf("embeddings.requests_per_second must be non-negative")
	}
	for name, d := range map[string]string{
		"embeddings.timeout":   c.Embeddings.Timeout,
		"embeddings.cache_ttl": c.Embeddings.CacheTTL,
		"search.timeout":       c.Search.Timeout,
		"index.watch_debounce": c.Index.WatchDebounce,
	} {
		if _, err := parseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if !oneOf(c.VectorStore.Backend, validBackends) {
		return fmt.Errorf("vector_store.backend must be one of %s, got %s",
			strings.Join(validBackends, ", "), c.VectorStore.Backend)
	}
	if c.VectorStore.Collection == "" {
		return fmt.Errorf("vector_store.collection must not be empty")
	}
	if c.VectorStore.Backend == "qdrant" && (c.VectorStore.QdrantPort <= 0 || c.VectorStore.QdrantPort > 65535) {
		return fmt.Errorf("vector_store.qdrant_port out of range: %d", c.VectorStore.QdrantPort)
	}

	if c.Index.BatchSize <= 0 || c.Index.ScrollCap <= 0 || c.Index.ScrollPageSize <= 0 {
		return fmt.Errorf("index.batch_size, index.scroll_cap and index.scroll_page_size must be positive")
	}
	if c.Index.EmbedWorkers <= 0 {
		return fmt.Errorf("index.embed_workers must be positive, got %d", c.Index.EmbedWorkers)
	}

	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}
	if !oneOf(c.Chunking.Strategy, validStrategy) {
		return fmt.Errorf("chunking.strategy must be 'report' or 'recursive', got %s", c.Chunking.Strategy)
	}

	if !oneOf(c.Logging.Level, validLevels) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WeightSumDeviates reports whether the fusion weights are far from summing to 1.
// Callers log a warning; the sum is not enforced.
func (c *Config) WeightSumDeviates() bool {
	return math.Abs(c.Search.VectorWeight+c.Search.KeywordWeight-1.0) > 0.01
}

// EmbedTimeout returns the per-call embedding deadline.
func (c *Config) EmbedTimeout() time.Duration {
	d, _ := parseDuration(c.Embeddings.Timeout)
	return d
}

// CacheTTL returns the embedding cache TTL; 0 means entries never expire.
func (c *Config) CacheTTL() time.Duration {
	d, _ := parseDuration(c.Embeddings.CacheTTL)
	return d
}

// SearchTimeout returns the bound for one hybrid search.
func (c *Config) SearchTimeout() time.Duration {
	d, _ := parseDuration(c.Search.Timeout)
	return d
}

// WatchDebounce returns the debounce window for directory watching.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := parseDuration(c.Index.WatchDebounce)
	return d
}

// ResolvePath resolves p against the data dir, which is itself resolved
// against root when relative.
func (c *Config) ResolvePath(root, p string) string {
	dataDir := c.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(root, dataDir)
	}
	if p == "" {
		return dataDir
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy with secrets masked, for `config show`.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Search.Boosts = append([]BoostConfig(nil), c.Search.Boosts...)
	cp.Embeddings.OpenAIAPIKey = mask(c.Embeddings.OpenAIAPIKey)
	cp.Embeddings.GeminiAPIKey = mask(c.Embeddings.GeminiAPIKey)
	cp.VectorStore.QdrantAPIKey = mask(c.VectorStore.QdrantAPIKey)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// FindProjectRoot walks up from startDir looking for a project config file
// or a .git directory. Returns startDir (absolute) if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if ProjectConfigPath(current) != "" || dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

func oneOf(v string, set []string) bool {
	v = strings.ToLower(v)
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
