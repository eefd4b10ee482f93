// Package cache holds per-conversation chat history in Redis in front of the
// chat turn table.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"documind-backend/internal/model"
)

const (
	defaultHistoryTTL = 60 * time.Second
	defaultDirtyTTL   = 5 * time.Second
)

// HistoryCache stores one JSON list per (document, user) conversation.
//
// A write to the conversation calls Invalidate before touching the database.
// Invalidate drops the list and leaves a short-lived dirty marker. While the
// marker exists Load misses and StoreUnlessDirty is a no-op, so a reader that
// listed the table before the write cannot put the old list back.
type HistoryCache struct {
	client   *redisv9.Client
	ttl      time.Duration
	dirtyTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, ttl, dirtyTTL time.Duration) *HistoryCache {
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	if dirtyTTL <= 0 {
		dirtyTTL = defaultDirtyTTL
	}
	return &HistoryCache{client: client, ttl: ttl, dirtyTTL: dirtyTTL}
}

type conversationKeys struct {
	list  string
	dirty string
}

func keysFor(documentID, userID string) conversationKeys {
	// The hash tag keeps both keys in one cluster slot for WATCH/MULTI.
	base := "documind:history:{" + documentID + ":" + userID + "}"
	return conversationKeys{list: base, dirty: base + ":dirty"}
}

// Load returns the cached conversation. A dirty conversation is a miss.
func (c *HistoryCache) Load(ctx context.Context, documentID, userID string) ([]model.ChatTurn, bool, error) {
	k := keysFor(documentID, userID)

	var (
		list  *redisv9.StringCmd
		dirty *redisv9.IntCmd
	)
	_, err := c.client.Pipelined(ctx, func(p redisv9.Pipeliner) error {
		list = p.Get(ctx, k.list)
		dirty = p.Exists(ctx, k.dirty)
		return nil
	})
	if err != nil && !errors.Is(err, redisv9.Nil) {
		return nil, false, fmt.Errorf("load history failed: %w", err)
	}
	if err := dirty.Err(); err != nil {
		return nil, false, fmt.Errorf("load history failed: %w", err)
	}
	if dirty.Val() > 0 {
		return nil, false, nil
	}
	raw, err := list.Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load history failed: %w", err)
	}

	var turns []model.ChatTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, false, fmt.Errorf("decode cached history failed: %w", err)
	}
	return turns, true, nil
}

// StoreUnlessDirty caches turns unless the conversation is dirty or becomes
// dirty while storing. It reports whether the list was written.
func (c *HistoryCache) StoreUnlessDirty(ctx context.Context, documentID, userID string, turns []model.ChatTurn) (bool, error) {
	if turns == nil {
		turns = []model.ChatTurn{}
	}
	payload, err := json.Marshal(turns)
	if err != nil {
		return false, fmt.Errorf("encode history failed: %w", err)
	}
	k := keysFor(documentID, userID)

	stored := false
	err = c.client.Watch(ctx, func(tx *redisv9.Tx) error {
		n, err := tx.Exists(ctx, k.dirty).Result()
		if err != nil || n > 0 {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redisv9.Pipeliner) error {
			p.Set(ctx, k.list, payload, c.ttl)
			return nil
		})
		stored = err == nil
		return err
	}, k.dirty)
	if errors.Is(err, redisv9.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store history failed: %w", err)
	}
	return stored, nil
}

// Invalidate marks the conversation dirty and drops the cached list in one
// transaction.
func (c *HistoryCache) Invalidate(ctx context.Context, documentID, userID string) error {
	k := keysFor(documentID, userID)
	_, err := c.client.TxPipelined(ctx, func(p redisv9.Pipeliner) error {
		p.Set(ctx, k.dirty, 1, c.dirtyTTL)
		p.Del(ctx, k.list)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate history failed: %w", err)
	}
	return nil
}
