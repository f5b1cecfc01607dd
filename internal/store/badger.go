package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// Key layout. Points sort by id under pointPrefix, so key order is scroll order.
const (
	pointPrefix = "pt:"
	metaDimsKey = "meta:dims"
)

// BadgerIndex implements VectorIndex on a local BadgerDB directory.
// Search is an exact cosine scan over the matching points.
type BadgerIndex struct {
	db     *badger.DB
	dims   int
	name   string
	logger *slog.Logger
}

// Verify interface implementation at compile time
var _ VectorIndex = (*BadgerIndex)(nil)

// badgerRecord is the stored value of a point.
type badgerRecord struct {
	Vector  []float32
	Payload map[string]any
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadgerIndex opens (or creates) a BadgerDB directory at path.
// An empty path opens an in-memory database.
func OpenBadgerIndex(path string, dims int) (*BadgerIndex, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, merrors.IndexUnavailable("create badger directory", err).WithDetail("path", path)
		}
		opts = badger.DefaultOptions(path)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, merrors.IndexUnavailable("open badger vector index", err).WithDetail("path", path)
	}

	return &BadgerIndex{db: db, dims: dims, name: path, logger: logger}, nil
}

func pointKey(id string) []byte {
	return []byte(pointPrefix + id)
}

func encodeRecord(r badgerRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(val []byte) (badgerRecord, error) {
	var r badgerRecord
	err := gob.NewDecoder(bytes.NewReader(val)).Decode(&r)
	return r, err
}

func (b *BadgerIndex) unavailable(op string, err error) error {
	if merrors.GetCode(err) != "" {
		return err
	}
	return merrors.IndexUnavailable("badger "+op, err)
}

// EnsureCollection records the vector size on first use and refuses a
// directory built for another size.
func (b *BadgerIndex) EnsureCollection(_ context.Context) error {
	if b.db.IsClosed() {
		return errClosed("badger")
	}

	err := b.db.Update(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(metaDimsKey))
		if err == badger.ErrKeyNotFound {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(b.dims))
			return tx.Set([]byte(metaDimsKey), buf)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				if stored := int(binary.BigEndian.Uint64(val)); stored != b.dims {
					return checkDimensions(stored, make([]float32, b.dims))
				}
			}
			return nil
		})
	})
	if err != nil {
		return b.unavailable("ensure collection", err)
	}
	return nil
}

// Upsert writes points; an existing id is overwritten.
func (b *BadgerIndex) Upsert(_ context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if err := checkDimensions(b.dims, p.Vector); err != nil {
			return err
		}
	}
	if b.db.IsClosed() {
		return errClosed("badger")
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, p := range points {
		val, err := encodeRecord(badgerRecord{Vector: normalizedCopy(p.Vector), Payload: NormalizePayload(p.Payload)})
		if err != nil {
			return merrors.InternalError("encode point", err).WithDetail("id", p.ID)
		}
		if err := wb.Set(pointKey(p.ID), val); err != nil {
			return b.unavailable("upsert", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return b.unavailable("upsert", err)
	}
	return nil
}

// each visits stored points in key order starting after cursor, stopping
// when fn returns false.
func (b *BadgerIndex) each(ctx context.Context, cursor string, fn func(id string, r badgerRecord) (bool, error)) error {
	return b.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pointPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := []byte(pointPrefix)
		if cursor != "" {
			start = pointKey(cursor)
		}

		for iter.Seek(start); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			id := string(item.Key()[len(pointPrefix):])
			if cursor != "" && id == cursor {
				continue
			}

			var rec badgerRecord
			if err := item.Value(func(val []byte) error {
				var err error
				rec, err = decodeRecord(val)
				return err
			}); err != nil {
				return merrors.New(merrors.ErrCodeCorruptIndex, "decode point "+id, err)
			}

			more, err := fn(id, rec)
			if err != nil || !more {
				return err
			}
		}
		return nil
	})
}

// Search scans every point matching filter.
func (b *BadgerIndex) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		return []ScoredPoint{}, nil
	}
	if err := checkDimensions(b.dims, vector); err != nil {
		return nil, err
	}
	if b.db.IsClosed() {
		return nil, errClosed("badger")
	}

	query := normalizedCopy(vector)
	best := &topK{limit: limit}
	err := b.each(ctx, "", func(id string, r badgerRecord) (bool, error) {
		if filter.Match(r.Payload) {
			best.offer(ScoredPoint{ID: id, Score: dot(query, r.Vector), Payload: r.Payload})
		}
		return true, nil
	})
	if err != nil {
		return nil, b.unavailable("search", err)
	}
	return best.result(), nil
}

// Scroll pages through matching points in id order. The cursor is the
// last id of the previous page.
func (b *BadgerIndex) Scroll(ctx context.Context, filter Filter, limit int, cursor string) ([]Record, string, error) {
	if limit <= 0 {
		return []Record{}, "", nil
	}
	if b.db.IsClosed() {
		return nil, "", errClosed("badger")
	}

	page := make([]Record, 0, limit)
	more := false
	err := b.each(ctx, cursor, func(id string, r badgerRecord) (bool, error) {
		if !filter.Match(r.Payload) {
			return true, nil
		}
		if len(page) == limit {
			more = true
			return false, nil
		}
		page = append(page, Record{ID: id, Payload: r.Payload})
		return true, nil
	})
	if err != nil {
		return nil, "", b.unavailable("scroll", err)
	}

	next := ""
	if more {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

// Delete removes every point matching filter.
func (b *BadgerIndex) Delete(ctx context.Context, filter Filter) error {
	if err := refuseEmptyFilter(filter); err != nil {
		return err
	}
	if b.db.IsClosed() {
		return errClosed("badger")
	}

	var ids []string
	err := b.each(ctx, "", func(id string, r badgerRecord) (bool, error) {
		if filter.Match(r.Payload) {
			ids = append(ids, id)
		}
		return true, nil
	})
	if err != nil {
		return b.unavailable("delete", err)
	}
	if len(ids) == 0 {
		return nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, id := range ids {
		if err := wb.Delete(pointKey(id)); err != nil {
			return b.unavailable("delete", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return b.unavailable("delete", err)
	}

	b.logger.Debug("points_deleted", slog.Int("count", len(ids)))
	return nil
}

// Count returns the number of points matching filter.
func (b *BadgerIndex) Count(ctx context.Context, filter Filter) (int, error) {
	if b.db.IsClosed() {
		return 0, errClosed("badger")
	}
	n := 0
	err := b.each(ctx, "", func(_ string, r badgerRecord) (bool, error) {
		if filter.Match(r.Payload) {
			n++
		}
		return true, nil
	})
	if err != nil {
		return 0, b.unavailable("count", err)
	}
	return n, nil
}

// Dimensions returns the vector size.
func (b *BadgerIndex) Dimensions() int {
	return b.dims
}

// Close closes the database.
func (b *BadgerIndex) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}
