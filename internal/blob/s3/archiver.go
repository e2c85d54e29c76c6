package s3blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

// multipartThreshold is the payload size above which archives are uploaded
// in parts.
const multipartThreshold = 16 * 1024 * 1024

// Object metadata written with every archive file.
const (
	MetaSHA256  = "sha256"
	MetaMarkets = "markets"
	MetaBets    = "bets"
)

// SettledMarketStore lists markets whose settlement is older than a cutoff.
type SettledMarketStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error)
}

// MarketBetStore lists every bet of a market.
type MarketBetStore interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Bet, error)
}

// ArchiveRecord is one JSONL line of a market archive.
type ArchiveRecord struct {
	Market domain.Market `json:"market"`
	Bets   []domain.Bet  `json:"bets"`
}

// ArchiveImpl implements domain.Archiver by exporting settled markets with
// their bets as JSONL and uploading the file to object storage.
//
// Rows are not deleted from the primary store here; pruning is a separate,
// explicit step once the archive has been verified.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	reader   domain.BlobReader
	markets  SettledMarketStore
	bets     MarketBetStore
	audit    domain.AuditStore
	notifier domain.Notifier
	prefix   string
	logger   *slog.Logger
}

// ArchiverDeps groups the collaborators of NewArchiver. Reader, Audit and
// Notifier are optional.
type ArchiverDeps struct {
	Writer   domain.BlobWriter
	Reader   domain.BlobReader
	Markets  SettledMarketStore
	Bets     MarketBetStore
	Audit    domain.AuditStore
	Notifier domain.Notifier
}

// NewArchiver creates a new ArchiveImpl writing under prefix
// (default "archive").
func NewArchiver(deps ArchiverDeps, prefix string, logger *slog.Logger) *ArchiveImpl {
	if prefix == "" {
		prefix = "archive"
	}
	return &ArchiveImpl{
		writer:   deps.Writer,
		reader:   deps.Reader,
		markets:  deps.Markets,
		bets:     deps.Bets,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		prefix:   prefix,
		logger:   logger,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveSettledMarkets exports every market settled before the cutoff to
// <prefix>/markets/YYYY-MM-DD.jsonl and returns the number of markets
// written. Running it twice for the same day overwrites the file with a
// superset of the earlier export.
func (a *ArchiveImpl) ArchiveSettledMarkets(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	if len(markets) == 0 {
		a.logger.InfoContext(ctx, "archiver: nothing to archive",
			slog.Time("before", before),
		)
		return 0, nil
	}

	records := make([]ArchiveRecord, 0, len(markets))
	betCount := 0
	for _, m := range markets {
		bets, err := a.bets.ListByMarket(ctx, m.ID, domain.ListOpts{})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive bets of market %s: %w", m.ID, err)
		}
		betCount += len(bets)
		records = append(records, ArchiveRecord{Market: m, Bets: bets})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}

	path := a.archivePath("markets", before)
	sum := sha256.Sum256(buf)
	checksum := hex.EncodeToString(sum[:])
	meta := map[string]string{
		MetaSHA256:  checksum,
		MetaMarkets: strconv.Itoa(len(records)),
		MetaBets:    strconv.Itoa(betCount),
	}
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0, meta)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), ndjson, meta)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets upload: %w", err)
	}

	if a.reader != nil {
		if err := a.verify(ctx, path, int64(len(buf)), checksum); err != nil {
			return 0, fmt.Errorf("s3blob: archive markets verify: %w", err)
		}
	}

	count := int64(len(records))
	a.logger.InfoContext(ctx, "archiver: markets archived",
		slog.String("path", path),
		slog.Int64("markets", count),
		slog.Int("bets", betCount),
	)

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.markets", map[string]any{
			"path":    path,
			"markets": count,
			"bets":    betCount,
			"bytes":   len(buf),
			"sha256":  checksum,
			"before":  before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive markets audit log: %w", err)
		}
	}

	if a.notifier != nil {
		msg := fmt.Sprintf("%d markets (%d bets) written to %s", count, betCount, path)
		if err := a.notifier.Notify(ctx, domain.EventArchiveDone, "Archive completed", msg); err != nil {
			a.logger.WarnContext(ctx, "archiver: notify failed", slog.String("error", err.Error()))
		}
	}

	return count, nil
}

// verify checks that the stored object matches what was uploaded.
func (a *ArchiveImpl) verify(ctx context.Context, path string, size int64, checksum string) error {
	info, err := a.reader.Stat(ctx, path)
	if err != nil {
		return err
	}
	if info.Size != size {
		return fmt.Errorf("%s: stored %d bytes, uploaded %d", path, info.Size, size)
	}
	// Some S3-compatible stores drop user metadata; size is still checked.
	if got, ok := info.Metadata[MetaSHA256]; ok && got != checksum {
		return fmt.Errorf("%s: checksum mismatch", path)
	}
	return nil
}

// archivePath builds the object key for an archive file, partitioned by the
// day of the cutoff.
//
//	archive/markets/2025-01-31.jsonl
func (a *ArchiveImpl) archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("%s/%s/%s.jsonl", a.prefix, kind, before.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
