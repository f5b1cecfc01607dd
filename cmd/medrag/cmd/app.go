package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/medrag/internal/config"
	"github.com/Aman-CERP/medrag/internal/embed"
	"github.com/Aman-CERP/medrag/internal/index"
	"github.com/Aman-CERP/medrag/internal/search"
	"github.com/Aman-CERP/medrag/internal/store"
	"github.com/Aman-CERP/medrag/internal/telemetry"
)

// app is the wired set of components a command works with.
type app struct {
	cfg  *config.Config
	root string

	embedder embed.Embedder
	vectors  store.VectorIndex
	keyword  *store.KeywordIndex
	indexer  *index.Indexer
	engine   *search.Engine          // nil unless requested
	metrics  *telemetry.QueryMetrics // nil when telemetry is disabled
}

// openApp builds the embedder, both indexes and the indexer. withEngine also
// builds the search engine and, unless disabled, its telemetry.
func openApp(ctx context.Context, opts *globalOptions, withEngine bool) (*app, error) {
	cfg, root, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, root: root}

	a.embedder, err = embed.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.vectors, err = store.NewVectorIndex(cfg, root, a.embedder.Dimensions())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.keyword = store.NewKeywordIndex(store.KeywordConfigFrom(cfg))
	a.indexer, err = index.New(index.ConfigFrom(cfg, root), a.embedder, a.vectors, a.keyword)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.loadKeyword(ctx)

	if withEngine {
		if err := a.openEngine(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// loadKeyword restores the persisted keyword corpus, rebuilding it from the
// vector index when no usable file exists. Failure leaves the keyword index
// empty, so searches rank by vectors alone.
func (a *app) loadKeyword(ctx context.Context) {
	path := store.KeywordPath(a.cfg, a.root)
	err := a.keyword.Load(path)
	if err == nil {
		slog.Debug("keyword_index_loaded", slog.String("path", path), slog.Int("documents", a.keyword.Len()))
		return
	}
	if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("keyword index unreadable, rebuilding",
			slog.String("path", path), slog.String("error", err.Error()))
	}

	n, err := a.indexer.RebuildKeywordIndex(ctx)
	if err != nil {
		slog.Warn("keyword index rebuild failed", slog.String("error", err.Error()))
		return
	}
	slog.Debug("keyword_index_rebuilt", slog.Int("documents", n))
}

func (a *app) openEngine() error {
	searchCfg, err := search.ConfigFrom(a.cfg)
	if err != nil {
		return err
	}

	var engineOpts []search.EngineOption
	if !a.cfg.Telemetry.Disabled {
		metrics, err := openMetrics(a.cfg, a.root)
		if err != nil {
			// Telemetry never blocks a search.
			slog.Warn("telemetry unavailable", slog.String("error", err.Error()))
		} else {
			a.metrics = metrics
			engineOpts = append(engineOpts, search.WithMetrics(metrics))
		}
	}

	a.engine, err = search.NewEngine(a.embedder, a.vectors, a.keyword, searchCfg, engineOpts...)
	return err
}

// telemetryPath returns the SQLite file holding query telemetry.
func telemetryPath(cfg *config.Config, root string) string {
	p := cfg.Telemetry.Path
	if p == "" {
		p = telemetry.DefaultFileName
	}
	return cfg.ResolvePath(root, p)
}

func openMetrics(cfg *config.Config, root string) (*telemetry.QueryMetrics, error) {
	st, err := telemetry.OpenSQLiteStore(telemetryPath(cfg, root))
	if err != nil {
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}
	return telemetry.NewQueryMetrics(st), nil
}

// Close releases every opened component in reverse order.
func (a *app) Close() {
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil {
			slog.Warn("failed to flush telemetry", slog.String("error", err.Error()))
		}
	}
	if a.indexer != nil {
		_ = a.indexer.Close()
	}
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			slog.Warn("failed to close vector index", slog.String("error", err.Error()))
		}
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
}

// userFilter scopes an operation to userID; an empty id means no scope.
func userFilter(userID string) store.Filter {
	if userID == "" {
		return store.Filter{}
	}
	return store.Filter{store.FieldUserID: userID}
}
