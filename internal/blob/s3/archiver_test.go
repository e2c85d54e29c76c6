package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/poolbet/internal/domain"
)

type memObject struct {
	data []byte
	meta map[string]string
}

type memBlob struct {
	objects   map[string]memObject
	multipart int
	putErr    error
	// truncate drops bytes on store to simulate a short upload.
	truncate int
}

func newMemBlob() *memBlob { return &memBlob{objects: map[string]memObject{}} }

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string, meta map[string]string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = memObject{data: b[:len(b)-m.truncate], meta: meta}
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64, meta map[string]string) error {
	m.multipart++
	return m.Put(ctx, path, data, "", meta)
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	obj, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *memBlob) Stat(_ context.Context, path string) (domain.BlobInfo, error) {
	obj, ok := m.objects[path]
	if !ok {
		return domain.BlobInfo{}, domain.ErrNotFound
	}
	return domain.BlobInfo{Size: int64(len(obj.data)), Metadata: obj.meta}, nil
}

type fakeMarkets struct{ markets []domain.Market }

func (f fakeMarkets) ListSettledBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range f.markets {
		if m.SettledAt != nil && m.SettledAt.Before(before) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeBets map[string][]domain.Bet

func (f fakeBets) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Bet, error) {
	return f[marketID], nil
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeNotifier struct{ events []string }

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

func settledMarket(id string, at time.Time) domain.Market {
	return domain.Market{
		ID:               id,
		Question:         "Who wins?",
		Outcomes:         []string{"YES", "NO"},
		Pools:            map[string]decimal.Decimal{"YES": decimal.NewFromInt(10), "NO": decimal.Zero},
		TotalPool:        decimal.NewFromInt(10),
		Status:           domain.MarketStatusResolved,
		ResolutionResult: "YES",
		SettledAt:        &at,
	}
}

func TestArchiveSettledMarkets(t *testing.T) {
	cutoff := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	blob := newMemBlob()
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}

	a := NewArchiver(ArchiverDeps{
		Writer: blob,
		Reader: blob,
		Markets: fakeMarkets{markets: []domain.Market{
			settledMarket("m1", cutoff.Add(-48*time.Hour)),
			settledMarket("m2", cutoff.Add(-time.Hour)),
			settledMarket("m3", cutoff.Add(time.Hour)),
		}},
		Bets: fakeBets{
			"m1": {{ID: "b1", MarketID: "m1", Side: "YES", Amount: decimal.NewFromInt(10)}},
		},
		Audit:    audit,
		Notifier: notifier,
	}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveSettledMarkets(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveSettledMarkets: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d markets, want 2", n)
	}

	const path = "archive/markets/2025-03-01.jsonl"
	rc, err := blob.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("object %s missing: %v", path, err)
	}
	defer rc.Close()

	var records []ArchiveRecord
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		var rec ArchiveRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 2 {
		t.Fatalf("got %d lines, want 2", len(records))
	}
	if records[0].Market.ID != "m1" || len(records[0].Bets) != 1 {
		t.Errorf("first record = %s with %d bets", records[0].Market.ID, len(records[0].Bets))
	}
	if !records[0].Bets[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("bet amount = %s", records[0].Bets[0].Amount)
	}
	meta := blob.objects[path].meta
	if meta[MetaMarkets] != "2" || meta[MetaBets] != "1" || len(meta[MetaSHA256]) != 64 {
		t.Errorf("object metadata = %v", meta)
	}
	if blob.multipart != 0 {
		t.Errorf("small archive used multipart upload")
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.markets" {
		t.Errorf("audit events = %v", audit.events)
	}
	if len(notifier.events) != 1 || notifier.events[0] != domain.EventArchiveDone {
		t.Errorf("notifications = %v", notifier.events)
	}
}

func TestArchiveNothingToDo(t *testing.T) {
	blob := newMemBlob()
	notifier := &fakeNotifier{}
	a := NewArchiver(ArchiverDeps{
		Writer:   blob,
		Markets:  fakeMarkets{},
		Bets:     fakeBets{},
		Notifier: notifier,
	}, "cold", slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.ArchiveSettledMarkets(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("got (%d, %v), want (0, nil)", n, err)
	}
	if len(blob.objects) != 0 || len(notifier.events) != 0 {
		t.Errorf("empty run wrote %d objects and %d notifications", len(blob.objects), len(notifier.events))
	}
}

func TestArchiveUploadFailure(t *testing.T) {
	now := time.Now()
	blob := newMemBlob()
	blob.putErr = errors.New("bucket gone")
	audit := &fakeAudit{}
	a := NewArchiver(ArchiverDeps{
		Writer:  blob,
		Markets: fakeMarkets{markets: []domain.Market{settledMarket("m1", now.Add(-time.Hour))}},
		Bets:    fakeBets{},
		Audit:   audit,
	}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := a.ArchiveSettledMarkets(context.Background(), now); err == nil {
		t.Fatal("expected upload error")
	}
	if len(audit.events) != 0 {
		t.Errorf("failed upload was audited: %v", audit.events)
	}
}

func TestArchiveVerifyShortObject(t *testing.T) {
	now := time.Now()
	blob := newMemBlob()
	blob.truncate = 1
	notifier := &fakeNotifier{}
	a := NewArchiver(ArchiverDeps{
		Writer:   blob,
		Reader:   blob,
		Markets:  fakeMarkets{markets: []domain.Market{settledMarket("m1", now.Add(-time.Hour))}},
		Bets:     fakeBets{},
		Notifier: notifier,
	}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := a.ArchiveSettledMarkets(context.Background(), now); err == nil {
		t.Fatal("expected verify error for a short object")
	}
	if len(notifier.events) != 0 {
		t.Errorf("failed verify sent notifications: %v", notifier.events)
	}
}

func TestParseEncryption(t *testing.T) {
	for _, name := range []string{"", "AES256", "aws:kms"} {
		if _, err := parseEncryption(name); err != nil {
			t.Errorf("parseEncryption(%q): %v", name, err)
		}
	}
	if _, err := parseEncryption("rot13"); err == nil {
		t.Error("parseEncryption accepted an unknown algorithm")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"127.0.0.1:9000", false, "http://127.0.0.1:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"http://minio:9000", true, "http://minio:9000"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}
