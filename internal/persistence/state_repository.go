package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IliaW/hotel-crawler/internal/model"
)

const stateKey = "STATE"

// KeyValueStore is the durable store used for crawl-progress persistence:
// read once at start, written on interruption signals and at end of run.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// StateStorage loads and saves the crawl state snapshot.
type StateStorage interface {
	Load(ctx context.Context) (*model.CrawlState, error)
	Save(ctx context.Context, state *model.CrawlState) error
}

// StateRepository persists the crawl state as a jsonb row keyed by run.
// The run key separates concurrent crawls sharing one database.
type StateRepository struct {
	db     *sql.DB
	runKey string
}

func NewStateRepository(db *sql.DB, runKey string) *StateRepository {
	return &StateRepository{db: db, runKey: runKey}
}

func (sr *StateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := sr.db.QueryRowContext(ctx,
		"SELECT value FROM hotel_crawler.crawl_state WHERE run_key = $1 AND key = $2",
		sr.runKey, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (sr *StateRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := sr.db.ExecContext(ctx,
		`INSERT INTO hotel_crawler.crawl_state (run_key, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (run_key, key) DO UPDATE SET value = $3, updated_at = now()`,
		sr.runKey, key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Load reads the persisted crawl state. A missing or unreadable row yields
// a fresh state so a damaged snapshot cannot block a restart.
func (sr *StateRepository) Load(ctx context.Context) (*model.CrawlState, error) {
	raw, err := sr.Get(ctx, stateKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		slog.Debug("no persisted crawl state found, starting fresh.",
			slog.String("run_key", sr.runKey))
		return model.NewCrawlState(), nil
	}

	var state model.CrawlState
	if err = json.Unmarshal(raw, &state); err != nil {
		slog.Error("persisted crawl state is unreadable, starting fresh.",
			slog.String("run_key", sr.runKey), slog.String("err", err.Error()))
		return model.NewCrawlState(), nil
	}
	if state.Crawled == nil {
		state.Crawled = make(map[string]bool)
	}
	slog.Info("loaded crawl state.", slog.Int("crawled", len(state.Crawled)))
	return &state, nil
}

func (sr *StateRepository) Save(ctx context.Context, state *model.CrawlState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal crawl state: %w", err)
	}
	return sr.Set(ctx, stateKey, raw)
}
