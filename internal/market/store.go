package market

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Store provides tenant and cluster data for market classification.
type Store interface {
	// GetTenant retrieves a tenant by ID. Returns ErrTenantNotFound if missing.
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)

	// ListTenantIDs returns the IDs of all tenants.
	ListTenantIDs(ctx context.Context) ([]string, error)

	// ClusterTenantIDs returns the IDs of all tenants in a cluster.
	// Returns ErrClusterNotFound if the cluster does not exist.
	ClusterTenantIDs(ctx context.Context, clusterID string) ([]string, error)

	// CountActiveListings returns the number of active listings owned by a tenant.
	CountActiveListings(ctx context.Context, tenantID string) (int, error)

	// CountActiveListingsForTenants returns the aggregate number of active
	// listings owned by any of the given tenants.
	CountActiveListingsForTenants(ctx context.Context, tenantIDs []string) (int, error)

	// UpdateTenantMarketSize persists a newly derived market size on the tenant row.
	UpdateTenantMarketSize(ctx context.Context, tenantID string, size Size) error
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetTenant retrieves a tenant by ID.
func (s *PostgresStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `
		SELECT id, name, population, cluster_id, market_size, updated_at
		FROM tenants
		WHERE id = $1
	`
	var t Tenant
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&t.ID, &t.Name, &t.Population, &t.ClusterID, &t.MarketSize, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// ListTenantIDs returns the IDs of all tenants.
func (s *PostgresStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}
	return ids, nil
}

// ClusterTenantIDs returns the IDs of all tenants in a cluster.
func (s *PostgresStore) ClusterTenantIDs(ctx context.Context, clusterID string) ([]string, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM clusters WHERE id = $1)`, clusterID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check cluster existence: %w", err)
	}
	if !exists {
		return nil, ErrClusterNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM tenants WHERE cluster_id = $1 ORDER BY id`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cluster tenants: %w", err)
	}
	return ids, nil
}

// CountActiveListings returns the number of active listings owned by a tenant.
func (s *PostgresStore) CountActiveListings(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE tenant_id = $1 AND active`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active listings: %w", err)
	}
	return count, nil
}

// CountActiveListingsForTenants returns the aggregate active listing count
// across the given tenants.
func (s *PostgresStore) CountActiveListingsForTenants(ctx context.Context, tenantIDs []string) (int, error) {
	if len(tenantIDs) == 0 {
		return 0, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE tenant_id = ANY($1) AND active`,
		pq.Array(tenantIDs)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cluster listings: %w", err)
	}
	return count, nil
}

// UpdateTenantMarketSize persists a newly derived market size on the tenant row.
func (s *PostgresStore) UpdateTenantMarketSize(ctx context.Context, tenantID string, size Size) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET market_size = $1, updated_at = NOW() WHERE id = $2`,
		string(size), tenantID)
	if err != nil {
		return fmt.Errorf("failed to update tenant market size: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// InMemoryStore is an in-memory implementation of Store for testing.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]*Tenant
	clusters map[string]*Cluster
	listings map[string]int // tenantID -> active listing count
}

// NewInMemoryStore creates a new in-memory market store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tenants:  make(map[string]*Tenant),
		clusters: make(map[string]*Cluster),
		listings: make(map[string]int),
	}
}

// AddCluster registers a cluster.
func (s *InMemoryStore) AddCluster(c Cluster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clusterCopy := c
	s.clusters[c.ID] = &clusterCopy
}

// AddTenant registers a tenant with its current active listing count.
func (s *InMemoryStore) AddTenant(t Tenant, activeListings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenantCopy := t
	if tenantCopy.UpdatedAt.IsZero() {
		tenantCopy.UpdatedAt = time.Now()
	}
	s.tenants[t.ID] = &tenantCopy
	s.listings[t.ID] = activeListings
}

// SetActiveListings overrides the active listing count for a tenant.
func (s *InMemoryStore) SetActiveListings(tenantID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[tenantID] = count
}

// GetTenant retrieves a tenant by ID.
func (s *InMemoryStore) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	tenantCopy := *t
	return &tenantCopy, nil
}

// ListTenantIDs returns the IDs of all tenants.
func (s *InMemoryStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	return ids, nil
}

// ClusterTenantIDs returns the IDs of all tenants in a cluster.
func (s *InMemoryStore) ClusterTenantIDs(ctx context.Context, clusterID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.clusters[clusterID]; !ok {
		return nil, ErrClusterNotFound
	}
	var ids []string
	for id, t := range s.tenants {
		if t.ClusterID == clusterID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CountActiveListings returns the active listing count for a tenant.
func (s *InMemoryStore) CountActiveListings(ctx context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listings[tenantID], nil
}

// CountActiveListingsForTenants returns the aggregate active listing count.
func (s *InMemoryStore) CountActiveListingsForTenants(ctx context.Context, tenantIDs []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, id := range tenantIDs {
		total += s.listings[id]
	}
	return total, nil
}

// UpdateTenantMarketSize persists a derived market size.
func (s *InMemoryStore) UpdateTenantMarketSize(ctx context.Context, tenantID string, size Size) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return ErrTenantNotFound
	}
	t.MarketSize = size
	t.UpdatedAt = time.Now()
	return nil
}
