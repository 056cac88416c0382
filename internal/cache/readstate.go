// Package cache holds the Redis-backed ephemeral state: last-read
// timestamps per user and channel, and presence keys with a TTL.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceTTL = 60 * time.Second

type Store struct {
	rdb    *redis.Client
	prefix string
}

func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: strings.TrimSuffix(prefix, ":")}
}

func (s *Store) readKey(userID, channelID string) string {
	return fmt.Sprintf("%s:read:%s:%s", s.prefix, userID, channelID)
}

func (s *Store) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

// SetLastRead records when userID last read channelID.
func (s *Store) SetLastRead(ctx context.Context, userID, channelID string, at time.Time) error {
	return s.rdb.Set(ctx, s.readKey(userID, channelID), at.UnixMilli(), 0).Err()
}

// LastRead returns the recorded read time, zero time when none exists.
func (s *Store) LastRead(ctx context.Context, userID, channelID string) (time.Time, error) {
	v, err := s.rdb.Get(ctx, s.readKey(userID, channelID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// LastReadMany fetches read times for several channels in one MGET. Missing
// entries come back as zero times.
func (s *Store) LastReadMany(ctx context.Context, userID string, channelIDs []string) (map[string]time.Time, error) {
	if len(channelIDs) == 0 {
		return map[string]time.Time{}, nil
	}
	keys := make([]string, len(channelIDs))
	for i, id := range channelIDs {
		keys[i] = s.readKey(userID, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(channelIDs))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			out[channelIDs[i]] = time.Time{}
			continue
		}
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			out[channelIDs[i]] = time.Time{}
			continue
		}
		out[channelIDs[i]] = time.UnixMilli(ms)
	}
	return out, nil
}

// SetOnline refreshes the presence key; it expires on its own when the
// connection stops refreshing it.
func (s *Store) SetOnline(ctx context.Context, userID string) error {
	return s.rdb.Set(ctx, s.presenceKey(userID), "online", presenceTTL).Err()
}

func (s *Store) SetOffline(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, s.presenceKey(userID)).Err()
}

func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	v, err := s.rdb.Get(ctx, s.presenceKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "online", nil
}
