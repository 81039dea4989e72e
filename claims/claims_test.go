package claims

import (
	"context"
	"testing"
	"time"
)

func TestLocalClaims(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(time.Minute)

	if ok, _ := l.Acquire(ctx, "E1", "T1", "station-a"); !ok {
		t.Fatal("first claim refused")
	}
	if ok, _ := l.Acquire(ctx, "E1", "T1", "station-b"); ok {
		t.Error("second station got a held claim")
	}
	if ok, _ := l.Acquire(ctx, "E1", "T1", "station-a"); !ok {
		t.Error("owner could not re-acquire")
	}
	if ok, _ := l.Acquire(ctx, "E1", "T2", "station-b"); !ok {
		t.Error("claim on another ticket refused")
	}

	l.Release(ctx, "E1", "T1", "station-b")
	if ok, _ := l.Acquire(ctx, "E1", "T1", "station-b"); ok {
		t.Error("non-owner release freed the claim")
	}

	l.Release(ctx, "E1", "T1", "station-a")
	if ok, _ := l.Acquire(ctx, "E1", "T1", "station-b"); !ok {
		t.Error("released claim not available")
	}
}

func TestLocalClaimExpires(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Acquire(ctx, "E1", "T1", "station-a")
	now = now.Add(2 * time.Minute)
	if ok, _ := l.Acquire(ctx, "E1", "T1", "station-b"); !ok {
		t.Error("expired claim still blocks")
	}
}
