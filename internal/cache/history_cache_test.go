package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"documind-backend/internal/model"
)

func TestKeysShareSlot(t *testing.T) {
	k := keysFor("doc-1", "alice")
	if !strings.HasPrefix(k.dirty, k.list) {
		t.Fatalf("dirty key %q does not extend list key %q", k.dirty, k.list)
	}
	if !strings.Contains(k.list, "{doc-1:alice}") {
		t.Fatalf("list key %q has no hash tag", k.list)
	}
	if keysFor("doc-1", "bob").list == k.list {
		t.Fatal("conversations of different users share a key")
	}
}

// newRedisCache needs a scratch Redis at DOCUMIND_TEST_REDIS_ADDR.
func newRedisCache(t *testing.T) *HistoryCache {
	t.Helper()
	addr := os.Getenv("DOCUMIND_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DOCUMIND_TEST_REDIS_ADDR not set")
	}
	client := redisv9.NewClient(&redisv9.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	return NewHistoryCache(client, time.Minute, 200*time.Millisecond)
}

func TestHistoryCacheRoundTrip(t *testing.T) {
	c := newRedisCache(t)
	ctx := context.Background()
	doc := "doc-" + time.Now().Format("150405.000000")

	if _, hit, err := c.Load(ctx, doc, "alice"); err != nil || hit {
		t.Fatalf("empty cache: hit=%v err=%v", hit, err)
	}
	turns := []model.ChatTurn{{ID: "t1", UserMessage: "q", BotResponse: "a"}}
	stored, err := c.StoreUnlessDirty(ctx, doc, "alice", turns)
	if err != nil || !stored {
		t.Fatalf("store: stored=%v err=%v", stored, err)
	}
	got, hit, err := c.Load(ctx, doc, "alice")
	if err != nil || !hit || len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("load: %+v hit=%v err=%v", got, hit, err)
	}

	if err := c.Invalidate(ctx, doc, "alice"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, hit, _ := c.Load(ctx, doc, "alice"); hit {
		t.Fatal("invalidated conversation still served")
	}
	if stored, err := c.StoreUnlessDirty(ctx, doc, "alice", turns); err != nil || stored {
		t.Fatalf("store while dirty: stored=%v err=%v", stored, err)
	}

	time.Sleep(300 * time.Millisecond)
	if stored, err := c.StoreUnlessDirty(ctx, doc, "alice", nil); err != nil || !stored {
		t.Fatalf("store after marker expiry: stored=%v err=%v", stored, err)
	}
	got, hit, err = c.Load(ctx, doc, "alice")
	if err != nil || !hit || got == nil || len(got) != 0 {
		t.Fatalf("empty conversation: %+v hit=%v err=%v", got, hit, err)
	}
}
