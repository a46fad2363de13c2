package market

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryClassificationCache_SetGet(t *testing.T) {
	cache := NewInMemoryClassificationCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "tenant-1", SizeLarge, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	size, hit, err := cache.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !hit {
		t.Fatal("Get() miss, want hit")
	}
	if size != SizeLarge {
		t.Errorf("size = %q, want %q", size, SizeLarge)
	}
}

func TestInMemoryClassificationCache_MissIsNotError(t *testing.T) {
	cache := NewInMemoryClassificationCache()

	_, hit, err := cache.Get(context.Background(), "unknown")
	if err != nil {
		t.Errorf("Get() error = %v, want nil on miss", err)
	}
	if hit {
		t.Error("Get() hit, want miss")
	}
}

func TestInMemoryClassificationCache_Expiry(t *testing.T) {
	cache := NewInMemoryClassificationCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "tenant-1", SizeSmall, -time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	_, hit, err := cache.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if hit {
		t.Error("expired entry returned as hit")
	}
}

func TestInMemoryClassificationCache_Invalidate(t *testing.T) {
	cache := NewInMemoryClassificationCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "tenant-1", SizeMedium, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Invalidate(ctx, "tenant-1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	_, hit, _ := cache.Get(ctx, "tenant-1")
	if hit {
		t.Error("invalidated entry returned as hit")
	}
}
