package redishistory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bytemomo/narwhal/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "narwhal:history:"

var _ domain.HistoryStore = (*Store)(nil)

type Options struct {
	URL            string // redis://host:port/db
	Prefix         string
	ConnectTimeout time.Duration
	// MaxEntries caps the list kept per client; zero keeps everything.
	MaxEntries int64
}

// Store keeps one Redis list per client, oldest run first.
type Store struct {
	client *redis.Client
	prefix string
	max    int64
}

func New(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, opts.Prefix, opts.MaxEntries), nil
}

func NewWithClient(client *redis.Client, prefix string, max int64) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix, max: max}
}

func (s *Store) key(client string) string {
	return s.prefix + domain.Client{Name: client}.Slug()
}

func (s *Store) Append(ctx context.Context, e domain.HistoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	key := s.key(e.Client)

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.max > 0 {
		pipe.LTrim(ctx, key, -s.max, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history for %s: %w", e.Client, err)
	}
	return nil
}

// List returns up to limit most recent entries, oldest first. A limit of zero
// or less returns the whole history.
func (s *Store) List(ctx context.Context, client string, limit int) ([]domain.HistoryEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	items, err := s.client.LRange(ctx, s.key(client), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", client, err)
	}

	out := make([]domain.HistoryEntry, 0, len(items))
	for i, item := range items {
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("history entry %d for %s: %w", i, client, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Close() error { return s.client.Close() }
