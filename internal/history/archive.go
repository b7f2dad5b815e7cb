package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/storage"
)

var ErrNothingToArchive = errors.New("history is empty")

const parquetContentType = "application/vnd.apache.parquet"

type parquetEntry struct {
	Index           int64  `parquet:"index"`
	TimestampUnixMs int64  `parquet:"timestamp_unix_ms"`
	Question        string `parquet:"question"`
	IsComplex       bool   `parquet:"is_complex"`
	ValidatedSQL    string `parquet:"validated_sql,optional"`
	GeneratedSQL    string `parquet:"generated_sql,optional"`
}

// EncodeParquet writes entries, numbered from 1, as one parquet file.
func EncodeParquet(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrNothingToArchive
	}
	rows := make([]parquetEntry, 0, len(entries))
	for i, entry := range entries {
		rows = append(rows, parquetEntry{
			Index:           int64(i + 1),
			TimestampUnixMs: entry.Timestamp.UnixMilli(),
			Question:        entry.Question,
			IsComplex:       entry.IsComplex,
			ValidatedSQL:    entry.ValidatedSQL,
			GeneratedSQL:    entry.GeneratedSQL,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

type ArchiveResult struct {
	Key     string `json:"key"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
	ETag    string `json:"etag,omitempty"`
}

// Archiver snapshots the whole log into the object store.
type Archiver struct {
	Source  *FileStore
	Objects storage.ObjectStore
	Prefix  string
	Now     func() time.Time
	Logger  *slog.Logger
}

func (a *Archiver) Archive(ctx context.Context) (ArchiveResult, error) {
	if a.Source == nil || a.Objects == nil {
		return ArchiveResult{}, fmt.Errorf("archiver is not configured")
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	entries := a.Source.All()
	data, err := EncodeParquet(entries)
	if err != nil {
		return ArchiveResult{}, err
	}
	key, err := storage.BuildHistoryArchivePath(a.Prefix, now())
	if err != nil {
		return ArchiveResult{}, err
	}
	info, err := a.Objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType})
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("upload history archive: %w", err)
	}

	observability.LoggerOrDiscard(a.Logger).InfoContext(ctx, "history_archived",
		slog.String("key", key),
		slog.Int("entries", len(entries)),
		slog.Int("bytes", len(data)),
	)
	return ArchiveResult{Key: key, Entries: len(entries), Bytes: int64(len(data)), ETag: info.ETag}, nil
}

// Archives lists previously uploaded archives.
func (a *Archiver) Archives(ctx context.Context) ([]storage.ObjectInfo, error) {
	if a.Objects == nil {
		return nil, fmt.Errorf("archiver is not configured")
	}
	root, err := storage.HistoryArchiveRoot(a.Prefix)
	if err != nil {
		return nil, err
	}
	return a.Objects.List(ctx, root)
}
