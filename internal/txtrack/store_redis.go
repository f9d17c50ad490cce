package txtrack

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onchess/client-go/internal/chain"
)

const ttlSession = 24 * time.Hour

// Store persists per-session recovery state in Redis: open pending actions
// and the event-sequence high-watermark. Both are keyed by game and wallet so
// multiple sessions on one Redis do not collide.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// NewStoreFromURL connects to REDIS_URL-style addresses (redis:// or
// rediss://) and pings before returning.
func NewStoreFromURL(ctx context.Context, rawURL string) (*Store, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyPending(game uint64, wallet chain.Address) string {
	return fmt.Sprintf("session:pending:%d:%s", game, wallet)
}

func (s *Store) keyWatermark(game uint64, wallet chain.Address) string {
	return fmt.Sprintf("session:watermark:%d:%s", game, wallet)
}

func (s *Store) SavePending(ctx context.Context, game uint64, wallet chain.Address, kind Kind, at time.Time) error {
	key := s.keyPending(game, wallet)
	if err := s.rdb.HSet(ctx, key, string(kind), at.Unix()).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, key, ttlSession).Err()
}

func (s *Store) ClearPending(ctx context.Context, game uint64, wallet chain.Address, kind Kind) error {
	return s.rdb.HDel(ctx, s.keyPending(game, wallet), string(kind)).Err()
}

func (s *Store) LoadPending(ctx context.Context, game uint64, wallet chain.Address) (map[Kind]time.Time, error) {
	raw, err := s.rdb.HGetAll(ctx, s.keyPending(game, wallet)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[Kind]time.Time, len(raw))
	for field, val := range raw {
		sec, perr := strconv.ParseInt(val, 10, 64)
		if perr != nil {
			continue
		}
		out[Kind(field)] = time.Unix(sec, 0)
	}
	return out, nil
}

func (s *Store) SaveWatermark(ctx context.Context, game uint64, wallet chain.Address, seq chain.Seq) error {
	key := s.keyWatermark(game, wallet)
	val := fmt.Sprintf("%d/%d", seq.Block, seq.Log)
	if err := s.rdb.Set(ctx, key, val, ttlSession).Err(); err != nil {
		return err
	}
	return nil
}

// LoadWatermark returns the stored watermark; ok=false means no watermark has
// been persisted for this game yet.
func (s *Store) LoadWatermark(ctx context.Context, game uint64, wallet chain.Address) (chain.Seq, bool, error) {
	raw, err := s.rdb.Get(ctx, s.keyWatermark(game, wallet)).Result()
	if err == redis.Nil {
		return chain.Seq{}, false, nil
	}
	if err != nil {
		return chain.Seq{}, false, err
	}
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return chain.Seq{}, false, fmt.Errorf("malformed watermark %q", raw)
	}
	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return chain.Seq{}, false, fmt.Errorf("malformed watermark %q", raw)
	}
	log, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return chain.Seq{}, false, fmt.Errorf("malformed watermark %q", raw)
	}
	return chain.Seq{Block: block, Log: uint32(log)}, true, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
