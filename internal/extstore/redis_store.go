// Package extstore implements the crawler's StorageValidator collaborator
// over Redis, standing in for the original's extstore page-validity
// bookkeeping: entries with HasExternalHeader() point at a page/offset on
// external storage, and the crawler consults this to decide whether that
// page is still live before trusting an otherwise-unexpired entry.
package extstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ocx/cachecrawler/internal/crawler"
)

// RedisStore tracks external-storage page validity in Redis: a page is
// valid as long as its key is present in the "live pages" set. Compaction
// (not implemented here; out of scope per spec §9) would remove a page's
// key from that set once it reclaims the page, which is what Validate
// detects.
type RedisStore struct {
	rdb *redis.Client
	log *slog.Logger

	livePagesKey string
	timeout      time.Duration
}

// NewRedisStore connects to Redis at addr and pings it, matching
// infra.NewGoRedisAdapter's connect-and-verify contract.
func NewRedisStore(addr, password string, db int, log *slog.Logger) (*RedisStore, error) {
	if log == nil {
		log = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("extstore: redis ping failed (%s): %w", addr, err)
	}

	log.Info("extstore connected to redis", "addr", addr, "db", db)
	return &RedisStore{rdb: rdb, log: log, livePagesKey: "crawler:extstore:live_pages", timeout: 2 * time.Second}, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func pageKey(page uint32) string {
	return fmt.Sprintf("%d", page)
}

// MarkPageLive records page as currently holding readable data. Called by
// the store's own write path, outside the crawler's scope.
func (s *RedisStore) MarkPageLive(ctx context.Context, page uint32) error {
	return s.rdb.SAdd(ctx, s.livePagesKey, pageKey(page)).Err()
}

// Validate reports whether e's backing page is still live. Redis
// unreachability fails open (treats the page as valid) so a transient
// outage doesn't cause a reclaim storm; the failure is logged.
func (s *RedisStore) Validate(e crawler.Entry) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	ok, err := s.rdb.SIsMember(ctx, s.livePagesKey, pageKey(e.ExternalPage())).Result()
	if err != nil {
		s.log.Warn("extstore validate failed, assuming valid", "page", e.ExternalPage(), "err", err)
		return true
	}
	return ok
}

// Delete notifies the external store that e's copy is no longer needed,
// once the crawler has reclaimed it from the hash index and LRU.
func (s *RedisStore) Delete(e crawler.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := fmt.Sprintf("crawler:extstore:pending_delete:%d:%d", e.ExternalPage(), e.ExternalOffset())
	if err := s.rdb.Set(ctx, key, 1, 24*time.Hour).Err(); err != nil {
		s.log.Warn("extstore delete notify failed", "page", e.ExternalPage(), "offset", e.ExternalOffset(), "err", err)
	}
}
