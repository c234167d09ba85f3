package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

func TestMemory_Window(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Unix(1000, 0))
	c := NewMemory(clk, 10*time.Second)

	if c.IsRecentlyChecked(ctx, "https://a.no/") {
		t.Fatalf("unmarked key reported as checked")
	}
	c.MarkChecked(ctx, "https://a.no/")
	clk.Add(9999 * time.Millisecond)
	if !c.IsRecentlyChecked(ctx, "https://a.no/") {
		t.Fatalf("expected hit inside the window")
	}
	clk.Add(time.Millisecond)
	if c.IsRecentlyChecked(ctx, "https://a.no/") {
		t.Fatalf("expected miss at exactly the window")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", c.Len())
	}
}

func TestMemory_LazyEvictionOnMark(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := NewMemory(clk, time.Minute)
	for _, k := range []string{"a", "b", "c"} {
		c.MarkChecked(ctx, k)
	}
	clk.Add(2 * time.Minute)
	c.MarkChecked(ctx, "d")
	if c.Len() != 1 {
		t.Fatalf("len=%d, want 1 after lazy eviction", c.Len())
	}
}

func TestMemory_RemarkRefreshes(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := NewMemory(clk, 10*time.Second)
	c.MarkChecked(ctx, "k")
	clk.Add(8 * time.Second)
	c.MarkChecked(ctx, "k")
	clk.Add(8 * time.Second)
	if !c.IsRecentlyChecked(ctx, "k") {
		t.Fatalf("re-marked key should stay checked")
	}
}

func TestRedis_Window(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	c := NewRedis(client, 10*time.Second)
	if c.IsRecentlyChecked(ctx, "https://a.no/") {
		t.Fatalf("unmarked key reported as checked")
	}
	c.MarkChecked(ctx, "https://a.no/")
	if !c.IsRecentlyChecked(ctx, "https://a.no/") {
		t.Fatalf("expected hit after mark")
	}
	mr.FastForward(10 * time.Second)
	if c.IsRecentlyChecked(ctx, "https://a.no/") {
		t.Fatalf("expected miss after the window")
	}
}

func TestRedis_OutageIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	c := NewRedis(client, time.Minute)
	c.MarkChecked(context.Background(), "k")
	mr.Close()
	if c.IsRecentlyChecked(context.Background(), "k") {
		t.Fatalf("redis outage must not suppress checks")
	}
}
