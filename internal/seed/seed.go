// Package seed loads a YAML catalogue of markets and opens the ones that do
// not exist yet.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/poolbet/internal/domain"
	"github.com/alanyoungcy/poolbet/internal/service"
)

// File is the top-level layout of a seed file.
type File struct {
	Markets []Market `yaml:"markets"`
}

// Market describes one market to open. Exactly one of EndsAt and EndsIn
// must be set; EndsIn is relative to the time the seed runs. Outcomes
// default to YES and NO.
type Market struct {
	Question string        `yaml:"question"`
	Outcomes []string      `yaml:"outcomes"`
	EndsAt   time.Time     `yaml:"ends_at"`
	EndsIn   time.Duration `yaml:"ends_in"`
}

// MarketCreator is the subset of the market service the seeder uses.
type MarketCreator interface {
	CreateMarket(ctx context.Context, p service.CreateMarketParams) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
}

// Parse decodes a seed file and checks every entry.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return File{}, nil
		}
		return File{}, fmt.Errorf("seed: decode: %w", err)
	}

	for i, m := range f.Markets {
		if strings.TrimSpace(m.Question) == "" {
			return File{}, fmt.Errorf("seed: market %d: question is required", i)
		}
		if m.EndsAt.IsZero() == (m.EndsIn == 0) {
			return File{}, fmt.Errorf("seed: market %d: set exactly one of ends_at or ends_in", i)
		}
		if m.EndsIn < 0 {
			return File{}, fmt.Errorf("seed: market %d: ends_in must be positive", i)
		}
	}
	return f, nil
}

// LoadFile reads and parses the seed file at path.
func LoadFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer fh.Close()
	return Parse(fh)
}

// Seeder opens seed markets through the market service.
type Seeder struct {
	markets MarketCreator
	now     func() time.Time
	logger  *slog.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(markets MarketCreator, logger *slog.Logger) *Seeder {
	return &Seeder{
		markets: markets,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "seed")),
	}
}

// Apply opens every market in f whose question is not already an open
// market. It returns the number of markets created.
func (s *Seeder) Apply(ctx context.Context, f File) (int, error) {
	open, err := s.markets.ListMarkets(ctx, domain.MarketStatusOpen, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("seed: list open markets: %w", err)
	}
	existing := make(map[string]bool, len(open))
	for _, m := range open {
		existing[normalise(m.Question)] = true
	}

	now := s.now().UTC()
	created := 0
	for _, m := range f.Markets {
		key := normalise(m.Question)
		if existing[key] {
			s.logger.InfoContext(ctx, "seed: market already open, skipping",
				slog.String("question", m.Question),
			)
			continue
		}

		outcomes := m.Outcomes
		if len(outcomes) == 0 {
			outcomes = []string{"YES", "NO"}
		}
		endsAt := m.EndsAt
		if m.EndsIn > 0 {
			endsAt = now.Add(m.EndsIn)
		}

		market, err := s.markets.CreateMarket(ctx, service.CreateMarketParams{
			Question: m.Question,
			Outcomes: outcomes,
			EndsAt:   endsAt,
		})
		if err != nil {
			return created, fmt.Errorf("seed: create %q: %w", m.Question, err)
		}
		existing[key] = true
		created++
		s.logger.InfoContext(ctx, "seed: market created",
			slog.String("market_id", market.ID),
			slog.String("question", market.Question),
		)
	}
	return created, nil
}

func normalise(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
