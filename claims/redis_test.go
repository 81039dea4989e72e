package claims

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisClaims(t *testing.T) (*Redis, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, time.Minute), mr, client
}

func TestRedisClaims(t *testing.T) {
	ctx := context.Background()
	r, mr, _ := newRedisClaims(t)
	k := key("E1", "T1")

	if ok, err := r.Acquire(ctx, "E1", "T1", "station-a"); err != nil || !ok {
		t.Fatalf("first claim = %v, %v", ok, err)
	}
	if ok, err := r.Acquire(ctx, "E1", "T1", "station-b"); err != nil || ok {
		t.Errorf("second station claim = %v, %v", ok, err)
	}
	if ok, _ := r.Acquire(ctx, "E1", "T1", "station-a"); !ok {
		t.Error("owner could not re-acquire")
	}
	if ttl := mr.TTL(k); ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %s", ttl)
	}

	if err := r.Release(ctx, "E1", "T1", "station-b"); err != nil {
		t.Fatalf("non-owner release: %v", err)
	}
	if owner, err := mr.Get(k); err != nil || owner != "station-a" {
		t.Errorf("after non-owner release owner = %q, %v", owner, err)
	}

	if err := r.Release(ctx, "E1", "T1", "station-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(k) {
		t.Error("claim still held after owner release")
	}
	if err := r.Release(ctx, "E1", "T1", "station-a"); err != nil {
		t.Errorf("releasing a free claim: %v", err)
	}
	if ok, _ := r.Acquire(ctx, "E1", "T1", "station-b"); !ok {
		t.Error("released claim not available")
	}
}

func TestRedisClaimExpires(t *testing.T) {
	ctx := context.Background()
	r, mr, _ := newRedisClaims(t)

	if ok, _ := r.Acquire(ctx, "E1", "T1", "station-a"); !ok {
		t.Fatal("first claim refused")
	}
	mr.FastForward(time.Minute + time.Second)

	if ok, err := r.Acquire(ctx, "E1", "T1", "station-b"); err != nil || !ok {
		t.Errorf("claim after expiry = %v, %v", ok, err)
	}
}

// expireOnRefusedSet drops the key right after a refused SET NX, as if its TTL ran out
// before the owner is read.
type expireOnRefusedSet struct {
	mr   *miniredis.Miniredis
	key  string
	once sync.Once
}

func (h *expireOnRefusedSet) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *expireOnRefusedSet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if b, ok := cmd.(*redis.BoolCmd); ok && cmd.Name() == "set" && !b.Val() {
			h.once.Do(func() { h.mr.Del(h.key) })
		}
		return err
	}
}

func (h *expireOnRefusedSet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisClaimExpiresWhileReadingOwner(t *testing.T) {
	ctx := context.Background()
	r, mr, client := newRedisClaims(t)

	if ok, _ := r.Acquire(ctx, "E1", "T1", "station-a"); !ok {
		t.Fatal("first claim refused")
	}
	client.AddHook(&expireOnRefusedSet{mr: mr, key: key("E1", "T1")})

	ok, err := r.Acquire(ctx, "E1", "T1", "station-b")
	if err != nil || !ok {
		t.Fatalf("claim = %v, %v", ok, err)
	}
	if owner, _ := mr.Get(key("E1", "T1")); owner != "station-b" {
		t.Errorf("owner = %q", owner)
	}
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	r, mr, _ := newRedisClaims(t)
	mr.Close()

	if _, err := r.Acquire(ctx, "E1", "T1", "station-a"); err == nil {
		t.Error("Acquire succeeded without a server")
	}
	if err := r.Release(ctx, "E1", "T1", "station-a"); err == nil {
		t.Error("Release succeeded without a server")
	}
}
