package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/unilist/unilist/internal/market"
	"github.com/unilist/unilist/internal/tracing"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint
// violations, used to map duplicate interactions.
const pqUniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL with
// transactional read-modify-write on the listing counters.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}
}

const listingColumns = `
	id, tenant_id, title, duration_class,
	messages, shares, bookmarks, reposts,
	base_score, final_score, relative_grade, market_size, review_score_bonus,
	active, version, created_at, updated_at, last_interaction_at
`

// scanListing reads one listing row from a row scanner.
func scanListing(scan func(dest ...any) error) (*Listing, error) {
	var l Listing
	var grade sql.NullString
	var lastAt sql.NullTime
	err := scan(
		&l.ID, &l.TenantID, &l.Title, &l.DurationClass,
		&l.Messages, &l.Shares, &l.Bookmarks, &l.Reposts,
		&l.BaseScore, &l.FinalScore, &grade, &l.MarketSize, &l.ReviewScoreBonus,
		&l.Active, &l.Version, &l.CreatedAt, &l.UpdatedAt, &lastAt,
	)
	if err != nil {
		return nil, err
	}
	if grade.Valid {
		l.RelativeGrade = &grade.String
	}
	if lastAt.Valid {
		at := lastAt.Time
		l.LastInteractionAt = &at
	}
	return &l, nil
}

// Create inserts a new listing with a generated UUID.
func (r *PostgresRepository) Create(ctx context.Context, l *Listing) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.BaseScore = BaseScore
	if l.FinalScore == 0 {
		l.FinalScore = BaseScore
	}
	l.Active = true
	l.Version = 1

	query := `
		INSERT INTO listings (
			id, tenant_id, title, duration_class, market_size,
			base_score, final_score, review_score_bonus,
			active, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, 1, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		l.ID, l.TenantID, l.Title, string(l.DurationClass), string(l.MarketSize),
		l.BaseScore, l.FinalScore, l.ReviewScoreBonus,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		err = fmt.Errorf("failed to insert listing: %w", err)
		return err
	}
	return nil
}

// GetByID retrieves a listing by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Listing, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	l, scanErr := scanListing(row.Scan)
	if scanErr == sql.ErrNoRows {
		err = ErrListingNotFound
		return nil, err
	}
	if scanErr != nil {
		err = fmt.Errorf("failed to get listing: %w", scanErr)
		return nil, err
	}
	return l, nil
}

// Deactivate soft-removes a listing.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	result, execErr := r.db.ExecContext(ctx,
		`UPDATE listings SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active`, id)
	if execErr != nil {
		err = fmt.Errorf("failed to deactivate listing: %w", execErr)
		return err
	}
	affected, raErr := result.RowsAffected()
	if raErr != nil {
		err = fmt.Errorf("failed to read rows affected: %w", raErr)
		return err
	}
	if affected == 0 {
		err = ErrListingNotFound
		return err
	}
	return nil
}

// ListActiveByMarket returns active listings in a bucket, best score first.
func (r *PostgresRepository) ListActiveByMarket(ctx context.Context, size market.Size) ([]*Listing, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE active AND market_size = $1
		ORDER BY final_score DESC, id ASC
	`
	rows, queryErr := r.db.QueryContext(ctx, query, string(size))
	if queryErr != nil {
		err = fmt.Errorf("failed to list active listings: %w", queryErr)
		return nil, err
	}
	defer rows.Close()

	var results []*Listing
	for rows.Next() {
		l, scanErr := scanListing(rows.Scan)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan listing: %w", scanErr)
			return nil, err
		}
		results = append(results, l)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = fmt.Errorf("failed to iterate listings: %w", rowsErr)
		return nil, err
	}
	return results, nil
}

// UpdateScore persists a recomputed final score with optimistic versioning.
func (r *PostgresRepository) UpdateScore(ctx context.Context, id string, expectedVersion int64, finalScore float64) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	result, execErr := r.db.ExecContext(ctx, `
		UPDATE listings
		SET final_score = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`, finalScore, id, expectedVersion)
	if execErr != nil {
		err = fmt.Errorf("failed to update listing score: %w", execErr)
		return err
	}
	affected, raErr := result.RowsAffected()
	if raErr != nil {
		err = fmt.Errorf("failed to read rows affected: %w", raErr)
		return err
	}
	if affected == 0 {
		// Distinguish a stale version from a missing row.
		var exists bool
		if checkErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
			err = fmt.Errorf("failed to check listing existence: %w", checkErr)
			return err
		}
		if !exists {
			err = ErrListingNotFound
			return err
		}
		err = ErrVersionConflict
		return err
	}
	return nil
}

// UpdateGrade assigns a relative grade to one listing.
func (r *PostgresRepository) UpdateGrade(ctx context.Context, id string, grade string) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	result, execErr := r.db.ExecContext(ctx,
		`UPDATE listings SET relative_grade = $1, updated_at = NOW() WHERE id = $2`, grade, id)
	if execErr != nil {
		err = fmt.Errorf("failed to update listing grade: %w", execErr)
		return err
	}
	affected, raErr := result.RowsAffected()
	if raErr != nil {
		err = fmt.Errorf("failed to read rows affected: %w", raErr)
		return err
	}
	if affected == 0 {
		err = ErrListingNotFound
		return err
	}
	return nil
}

// BulkUpdateGrades assigns grades to many listings in one transaction.
func (r *PostgresRepository) BulkUpdateGrades(ctx context.Context, grades map[string]string) (int, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	if len(grades) == 0 {
		return 0, nil
	}

	tx, txErr := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if txErr != nil {
		err = fmt.Errorf("failed to begin grade transaction: %w", txErr)
		return 0, err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.logger.Warn("failed to rollback grade transaction",
				slog.String("error", rbErr.Error()))
		}
	}()

	stmt, prepErr := tx.PrepareContext(ctx,
		`UPDATE listings SET relative_grade = $1, updated_at = NOW() WHERE id = $2 AND active`)
	if prepErr != nil {
		err = fmt.Errorf("failed to prepare grade update: %w", prepErr)
		return 0, err
	}
	defer stmt.Close()

	updated := 0
	for id, grade := range grades {
		result, execErr := stmt.ExecContext(ctx, grade, id)
		if execErr != nil {
			err = fmt.Errorf("failed to assign grade to %s: %w", id, execErr)
			return 0, err
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			updated++
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = fmt.Errorf("failed to commit grade transaction: %w", commitErr)
		return 0, err
	}
	return updated, nil
}

// UpdateMarketSize refreshes the denormalized market bucket on a listing.
func (r *PostgresRepository) UpdateMarketSize(ctx context.Context, id string, size market.Size) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	result, execErr := r.db.ExecContext(ctx,
		`UPDATE listings SET market_size = $1, updated_at = NOW() WHERE id = $2`, string(size), id)
	if execErr != nil {
		err = fmt.Errorf("failed to update listing market size: %w", execErr)
		return err
	}
	affected, raErr := result.RowsAffected()
	if raErr != nil {
		err = fmt.Errorf("failed to read rows affected: %w", raErr)
		return err
	}
	if affected == 0 {
		err = ErrListingNotFound
		return err
	}
	return nil
}

// AddInteraction appends one interaction and bumps the matching counter in
// a single transaction so concurrent events on one listing serialize on
// the row lock.
func (r *PostgresRepository) AddInteraction(ctx context.Context, in Interaction) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	tx, txErr := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if txErr != nil {
		err = fmt.Errorf("failed to begin interaction transaction: %w", txErr)
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.logger.Warn("failed to rollback interaction transaction",
				slog.String("error", rbErr.Error()))
		}
	}()

	// Lock the listing row first; this serializes counter updates.
	var active bool
	lockErr := tx.QueryRowContext(ctx,
		`SELECT active FROM listings WHERE id = $1 FOR UPDATE`, in.ListingID).Scan(&active)
	if lockErr == sql.ErrNoRows || (lockErr == nil && !active) {
		err = ErrListingNotFound
		return err
	}
	if lockErr != nil {
		err = fmt.Errorf("failed to lock listing: %w", lockErr)
		return err
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, insertErr := tx.ExecContext(ctx, `
		INSERT INTO interactions (listing_id, actor_id, kind, created_at)
		VALUES ($1, $2, $3, $4)
	`, in.ListingID, in.ActorID, string(in.Kind), createdAt)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			err = ErrDuplicateInteraction
			return err
		}
		err = fmt.Errorf("failed to insert interaction: %w", insertErr)
		return err
	}

	_, updateErr := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE listings
		SET %s = %s + 1, last_interaction_at = $1, updated_at = NOW()
		WHERE id = $2
	`, counterColumn(in.Kind), counterColumn(in.Kind)), createdAt, in.ListingID)
	if updateErr != nil {
		err = fmt.Errorf("failed to bump interaction counter: %w", updateErr)
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = fmt.Errorf("failed to commit interaction: %w", commitErr)
		return err
	}
	return nil
}

// RemoveInteraction deletes one interaction and decrements the counter.
func (r *PostgresRepository) RemoveInteraction(ctx context.Context, listingID, actorID string, kind Kind) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationDelete)
	var err error
	defer func() { endSpan(err) }()

	tx, txErr := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if txErr != nil {
		err = fmt.Errorf("failed to begin interaction transaction: %w", txErr)
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.logger.Warn("failed to rollback interaction transaction",
				slog.String("error", rbErr.Error()))
		}
	}()

	var exists bool
	lockErr := tx.QueryRowContext(ctx,
		`SELECT TRUE FROM listings WHERE id = $1 FOR UPDATE`, listingID).Scan(&exists)
	if lockErr == sql.ErrNoRows {
		err = ErrListingNotFound
		return err
	}
	if lockErr != nil {
		err = fmt.Errorf("failed to lock listing: %w", lockErr)
		return err
	}

	result, delErr := tx.ExecContext(ctx, `
		DELETE FROM interactions
		WHERE listing_id = $1 AND actor_id = $2 AND kind = $3
	`, listingID, actorID, string(kind))
	if delErr != nil {
		err = fmt.Errorf("failed to delete interaction: %w", delErr)
		return err
	}
	affected, raErr := result.RowsAffected()
	if raErr != nil {
		err = fmt.Errorf("failed to read rows affected: %w", raErr)
		return err
	}
	if affected == 0 {
		err = ErrInteractionNotFound
		return err
	}

	_, updateErr := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE listings
		SET %s = GREATEST(%s - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, counterColumn(kind), counterColumn(kind)), listingID)
	if updateErr != nil {
		err = fmt.Errorf("failed to decrement interaction counter: %w", updateErr)
		return err
	}

	if commitErr := tx.Commit(); commitErr != nil {
		err = fmt.Errorf("failed to commit interaction removal: %w", commitErr)
		return err
	}
	return nil
}

// InteractionStats aggregates a listing's interaction history as of now.
func (r *PostgresRepository) InteractionStats(ctx context.Context, listingID string, now time.Time) (*InteractionStats, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "interactions", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	var exists bool
	if checkErr := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, listingID).Scan(&exists); checkErr != nil {
		err = fmt.Errorf("failed to check listing existence: %w", checkErr)
		return nil, err
	}
	if !exists {
		err = ErrListingNotFound
		return nil, err
	}

	query := `
		SELECT
			kind,
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at > $2),
			COUNT(*) FILTER (WHERE kind = 'repost' AND created_at > $3),
			MAX(created_at)
		FROM interactions
		WHERE listing_id = $1
		GROUP BY kind
	`
	rows, queryErr := r.db.QueryContext(ctx, query,
		listingID, now.Add(-RecentWindow), now.Add(-RepostWindow))
	if queryErr != nil {
		err = fmt.Errorf("failed to aggregate interactions: %w", queryErr)
		return nil, err
	}
	defer rows.Close()

	stats := &InteractionStats{Counts: make(map[Kind]int)}
	for rows.Next() {
		var kind string
		var total, recent, recentReposts int
		var lastAt time.Time
		if scanErr := rows.Scan(&kind, &total, &recent, &recentReposts, &lastAt); scanErr != nil {
			err = fmt.Errorf("failed to scan interaction stats: %w", scanErr)
			return nil, err
		}
		k := Kind(kind)
		stats.Counts[k] = total
		stats.Total += total
		stats.Recent += recent
		if k == KindRepost {
			stats.TotalReposts = total
			stats.RecentReposts = recentReposts
		}
		if stats.LastInteractionAt == nil || lastAt.After(*stats.LastInteractionAt) {
			at := lastAt
			stats.LastInteractionAt = &at
		}
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = fmt.Errorf("failed to iterate interaction stats: %w", rowsErr)
		return nil, err
	}
	stats.Historical = stats.Total - stats.Recent
	return stats, nil
}

// SetScope stores or replaces the targeting scope of a listing.
func (r *PostgresRepository) SetScope(ctx context.Context, s Scope) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listing_scopes", tracing.DBOperationUpdate)
	var err error
	defer func() { endSpan(err) }()

	var exists bool
	if checkErr := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)`, s.ListingID).Scan(&exists); checkErr != nil {
		err = fmt.Errorf("failed to check listing existence: %w", checkErr)
		return err
	}
	if !exists {
		err = ErrListingNotFound
		return err
	}

	_, execErr := r.db.ExecContext(ctx, `
		INSERT INTO listing_scopes (listing_id, tenant_ids, primary_tenant_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (listing_id)
		DO UPDATE SET tenant_ids = $2, primary_tenant_id = $3, updated_at = NOW()
	`, s.ListingID, pq.Array(s.TenantIDs), s.PrimaryTenantID)
	if execErr != nil {
		err = fmt.Errorf("failed to set listing scope: %w", execErr)
		return err
	}
	return nil
}

// GetScope returns the targeting scope of a listing.
func (r *PostgresRepository) GetScope(ctx context.Context, listingID string) (*Scope, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "listing_scopes", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	s := &Scope{ListingID: listingID}
	scanErr := r.db.QueryRowContext(ctx, `
		SELECT tenant_ids, primary_tenant_id
		FROM listing_scopes
		WHERE listing_id = $1
	`, listingID).Scan(pq.Array(&s.TenantIDs), &s.PrimaryTenantID)
	if scanErr == sql.ErrNoRows {
		err = ErrScopeNotFound
		return nil, err
	}
	if scanErr != nil {
		err = fmt.Errorf("failed to get listing scope: %w", scanErr)
		return nil, err
	}
	return s, nil
}

// counterColumn maps an interaction kind to its listing counter column.
func counterColumn(kind Kind) string {
	switch kind {
	case KindMessage:
		return "messages"
	case KindShare:
		return "shares"
	case KindBookmark:
		return "bookmarks"
	case KindRepost:
		return "reposts"
	default:
		return "messages"
	}
}
