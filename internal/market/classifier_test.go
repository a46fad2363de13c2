package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newSoloStore(tenantID string, listings int) *InMemoryStore {
	store := NewInMemoryStore()
	store.AddCluster(Cluster{ID: "cluster-1", Name: "Solo Cluster"})
	store.AddTenant(Tenant{ID: tenantID, Name: "State U", ClusterID: "cluster-1"}, listings)
	return store
}

func TestBreakpointSet_Classify(t *testing.T) {
	tests := []struct {
		name  string
		set   breakpointSet
		count int
		want  Size
	}{
		{"solo below small", soloBreakpoints, 99, SizeSmall},
		{"solo at small boundary", soloBreakpoints, 100, SizeMedium},
		{"solo at medium boundary", soloBreakpoints, 500, SizeLarge},
		{"solo cannot reach massive", soloBreakpoints, 1000000, SizeLarge},
		{"small cluster small", smallClusterBreakpoints, 249, SizeSmall},
		{"small cluster medium", smallClusterBreakpoints, 250, SizeMedium},
		{"small cluster large", smallClusterBreakpoints, 1200, SizeLarge},
		{"small cluster massive", smallClusterBreakpoints, 3000, SizeMassive},
		{"mid cluster massive", midClusterBreakpoints, 6000, SizeMassive},
		{"large cluster just under massive", largeClusterBreakpoints, 11999, SizeLarge},
		{"large cluster massive", largeClusterBreakpoints, 12000, SizeMassive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.set.classify(tt.count); got != tt.want {
				t.Errorf("classify(%d) = %q, want %q", tt.count, got, tt.want)
			}
		})
	}
}

func TestBreakpointsForClusterSize(t *testing.T) {
	tests := []struct {
		members int
		want    breakpointSet
	}{
		{0, soloBreakpoints},
		{1, soloBreakpoints},
		{2, smallClusterBreakpoints},
		{5, smallClusterBreakpoints},
		{6, midClusterBreakpoints},
		{15, midClusterBreakpoints},
		{16, largeClusterBreakpoints},
		{100, largeClusterBreakpoints},
	}

	for _, tt := range tests {
		if got := breakpointsForClusterSize(tt.members); got != tt.want {
			t.Errorf("breakpointsForClusterSize(%d) = %+v, want %+v", tt.members, got, tt.want)
		}
	}
}

func TestClassifier_Classify_SoloTenant(t *testing.T) {
	store := newSoloStore("tenant-1", 150)
	classifier := NewClassifier(store, nil, time.Minute, nil)

	size, err := classifier.Classify(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if size != SizeMedium {
		t.Errorf("size = %q, want %q", size, SizeMedium)
	}
}

func TestClassifier_Classify_ClusterAggregates(t *testing.T) {
	store := NewInMemoryStore()
	store.AddCluster(Cluster{ID: "cluster-1", Name: "Metro Cluster"})
	store.AddTenant(Tenant{ID: "tenant-a", ClusterID: "cluster-1"}, 100)
	store.AddTenant(Tenant{ID: "tenant-b", ClusterID: "cluster-1"}, 200)
	store.AddTenant(Tenant{ID: "tenant-c", ClusterID: "cluster-1"}, 50)

	classifier := NewClassifier(store, nil, time.Minute, nil)

	// 350 aggregate listings across a 3-member cluster: medium band.
	size, err := classifier.Classify(context.Background(), "tenant-c")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if size != SizeMedium {
		t.Errorf("size = %q, want %q", size, SizeMedium)
	}
}

func TestClassifier_Classify_MissingTenantDefaultsSmall(t *testing.T) {
	classifier := NewClassifier(NewInMemoryStore(), nil, time.Minute, nil)

	size, err := classifier.Classify(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if size != SizeSmall {
		t.Errorf("size = %q, want %q", size, SizeSmall)
	}
}

func TestClassifier_Classify_MissingClusterDefaultsSmall(t *testing.T) {
	store := NewInMemoryStore()
	store.AddTenant(Tenant{ID: "tenant-1", ClusterID: "ghost-cluster"}, 9999)

	classifier := NewClassifier(store, nil, time.Minute, nil)

	size, err := classifier.Classify(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if size != SizeSmall {
		t.Errorf("size = %q, want %q", size, SizeSmall)
	}
}

func TestClassifier_Classify_CacheHitSkipsStore(t *testing.T) {
	store := newSoloStore("tenant-1", 150)
	cache := NewInMemoryClassificationCache()
	classifier := NewClassifier(store, cache, time.Minute, nil)

	ctx := context.Background()
	if _, err := classifier.Classify(ctx, "tenant-1"); err != nil {
		t.Fatalf("first Classify() error = %v", err)
	}

	// Change the underlying count; the cached classification should win
	// until the TTL expires.
	store.SetActiveListings("tenant-1", 600)
	size, err := classifier.Classify(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("second Classify() error = %v", err)
	}
	if size != SizeMedium {
		t.Errorf("size = %q, want cached %q", size, SizeMedium)
	}
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, tenantID string) (Size, bool, error) {
	return "", false, errors.New("cache down")
}

func (failingCache) Set(ctx context.Context, tenantID string, size Size, ttl time.Duration) error {
	return errors.New("cache down")
}

func (failingCache) Invalidate(ctx context.Context, tenantID string) error {
	return errors.New("cache down")
}

func TestClassifier_Classify_CacheFailureFallsThrough(t *testing.T) {
	store := newSoloStore("tenant-1", 150)
	classifier := NewClassifier(store, failingCache{}, time.Minute, nil)

	size, err := classifier.Classify(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if size != SizeMedium {
		t.Errorf("size = %q, want %q", size, SizeMedium)
	}
}

func TestClassifier_ReclassifyAll(t *testing.T) {
	store := NewInMemoryStore()
	store.AddCluster(Cluster{ID: "cluster-1", Name: "Solo A"})
	store.AddCluster(Cluster{ID: "cluster-2", Name: "Solo B"})
	store.AddTenant(Tenant{ID: "tenant-small", ClusterID: "cluster-1"}, 10)
	store.AddTenant(Tenant{ID: "tenant-medium", ClusterID: "cluster-2"}, 300)

	cache := NewInMemoryClassificationCache()
	classifier := NewClassifier(store, cache, time.Minute, nil)

	ctx := context.Background()
	report, err := classifier.ReclassifyAll(ctx)
	if err != nil {
		t.Fatalf("ReclassifyAll() error = %v", err)
	}

	if report.Total != 2 {
		t.Errorf("Total = %d, want 2", report.Total)
	}
	if report.Updated != 2 {
		t.Errorf("Updated = %d, want 2", report.Updated)
	}
	if report.Failed != 0 {
		t.Errorf("Failed = %d, want 0", report.Failed)
	}
	if report.ByBucket[SizeSmall] != 1 || report.ByBucket[SizeMedium] != 1 {
		t.Errorf("ByBucket = %v, want one small and one medium", report.ByBucket)
	}

	// The derived size must be persisted on the tenant row.
	tenant, err := store.GetTenant(ctx, "tenant-medium")
	if err != nil {
		t.Fatalf("GetTenant() error = %v", err)
	}
	if tenant.MarketSize != SizeMedium {
		t.Errorf("persisted MarketSize = %q, want %q", tenant.MarketSize, SizeMedium)
	}

	// And the cache refreshed.
	size, hit, err := cache.Get(ctx, "tenant-small")
	if err != nil || !hit {
		t.Fatalf("cache.Get() = hit=%v err=%v, want hit", hit, err)
	}
	if size != SizeSmall {
		t.Errorf("cached size = %q, want %q", size, SizeSmall)
	}
}

func TestClassifier_ReclassifyAll_ContextCancelled(t *testing.T) {
	store := newSoloStore("tenant-1", 10)
	classifier := NewClassifier(store, nil, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := classifier.ReclassifyAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestValidSize(t *testing.T) {
	for _, size := range AllSizes() {
		if !ValidSize(size) {
			t.Errorf("ValidSize(%q) = false, want true", size)
		}
	}
	if ValidSize(Size("gigantic")) {
		t.Error("ValidSize(\"gigantic\") = true, want false")
	}
}
