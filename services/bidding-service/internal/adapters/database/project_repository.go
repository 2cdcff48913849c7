package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgdb "github.com/floroz/procura/pkg/database"
	"github.com/floroz/procura/services/bidding-service/internal/domain/lifecycle"
)

const projectColumns = `
	id, title, description, status::text, owner_id, bidding_deadline, delivery_date,
	max_bid, max_bid_visible, awarded_bid_id, awarded_amount, completed_at, created_at, updated_at
`

// PostgresProjectRepository implements lifecycle.ProjectRepository using pgx
type PostgresProjectRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresProjectRepository creates a new PostgreSQL project repository
func NewPostgresProjectRepository(pool *pgxpool.Pool) *PostgresProjectRepository {
	return &PostgresProjectRepository{pool: pool}
}

func scanProject(row pgx.Row) (*lifecycle.Project, error) {
	var p lifecycle.Project
	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Status,
		&p.OwnerID,
		&p.BiddingDeadline,
		&p.DeliveryDate,
		&p.MaxBid,
		&p.MaxBidVisible,
		&p.AwardedBidID,
		&p.AwardedAmount,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func statusStrings(statuses []lifecycle.ProjectStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// CreateProject inserts a new project within a transaction
func (r *PostgresProjectRepository) CreateProject(ctx context.Context, tx pgx.Tx, p *lifecycle.Project) error {
	query := `
		INSERT INTO projects (
			id, title, description, status, owner_id, bidding_deadline, delivery_date,
			max_bid, max_bid_visible, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4::text::project_status, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.Exec(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		string(p.Status),
		p.OwnerID,
		p.BiddingDeadline,
		p.DeliveryDate,
		p.MaxBid,
		p.MaxBidVisible,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by its ID (non-transactional read)
func (r *PostgresProjectRepository) GetProject(ctx context.Context, projectID uuid.UUID) (*lifecycle.Project, error) {
	return r.getProject(ctx, r.pool, projectID)
}

func (r *PostgresProjectRepository) getProject(ctx context.Context, db pkgdb.DBTX, projectID uuid.UUID) (*lifecycle.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	p, err := scanProject(db.QueryRow(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lifecycle.ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// UpdateDraft rewrites the editable fields while the project is still a draft
func (r *PostgresProjectRepository) UpdateDraft(ctx context.Context, tx pgx.Tx, p *lifecycle.Project) (int64, error) {
	query := `
		UPDATE projects
		SET title = $2,
			description = $3,
			bidding_deadline = $4,
			delivery_date = $5,
			max_bid = $6,
			max_bid_visible = $7,
			updated_at = NOW()
		WHERE id = $1 AND status = 'draft'
	`
	result, err := tx.Exec(ctx, query,
		p.ID,
		p.Title,
		p.Description,
		p.BiddingDeadline,
		p.DeliveryDate,
		p.MaxBid,
		p.MaxBidVisible,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update draft project: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteProject deletes a draft or bidding project that has no won bid.
// Its bids are removed by the foreign key cascade.
func (r *PostgresProjectRepository) DeleteProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error) {
	query := `
		DELETE FROM projects p
		WHERE p.id = $1
		  AND p.status IN ('draft', 'bidding')
		  AND NOT EXISTS (
			SELECT 1 FROM bids b WHERE b.project_id = p.id AND b.status = 'won'
		  )
	`
	result, err := tx.Exec(ctx, query, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project: %w", err)
	}
	return result.RowsAffected(), nil
}

// CompareAndSetStatus moves the project to "to" only if its current status is one of "from"
func (r *PostgresProjectRepository) CompareAndSetStatus(
	ctx context.Context,
	tx pgx.Tx,
	projectID uuid.UUID,
	from []lifecycle.ProjectStatus,
	to lifecycle.ProjectStatus,
) (int64, error) {
	query := `
		UPDATE projects
		SET status = $3::text::project_status, updated_at = NOW()
		WHERE id = $1 AND status::text = ANY($2::text[])
	`
	result, err := tx.Exec(ctx, query, projectID, statusStrings(from), string(to))
	if err != nil {
		return 0, fmt.Errorf("failed to update project status: %w", err)
	}
	return result.RowsAffected(), nil
}

// AwardProject moves a reviewing project to awarded and records the winner
func (r *PostgresProjectRepository) AwardProject(ctx context.Context, tx pgx.Tx, projectID, bidID uuid.UUID, amount int64) (int64, error) {
	query := `
		UPDATE projects
		SET status = 'awarded', awarded_bid_id = $2, awarded_amount = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'reviewing'
	`
	result, err := tx.Exec(ctx, query, projectID, bidID, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to award project: %w", err)
	}
	return result.RowsAffected(), nil
}

// CompleteProject moves an awarded project to completed
func (r *PostgresProjectRepository) CompleteProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, completedAt time.Time) (int64, error) {
	query := `
		UPDATE projects
		SET status = 'completed', completed_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'awarded'
	`
	result, err := tx.Exec(ctx, query, projectID, completedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to complete project: %w", err)
	}
	return result.RowsAffected(), nil
}

// ResetProject returns any non-draft project to draft and clears the award
func (r *PostgresProjectRepository) ResetProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error) {
	query := `
		UPDATE projects
		SET status = 'draft',
			awarded_bid_id = NULL,
			awarded_amount = NULL,
			completed_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status <> 'draft'
	`
	result, err := tx.Exec(ctx, query, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset project: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListExpiredBidding lists bidding projects whose deadline is at or before now.
// Pages are keyed on (bidding_deadline, id) so a caller can walk past rows it
// could not close.
func (r *PostgresProjectRepository) ListExpiredBidding(ctx context.Context, now time.Time, after *lifecycle.ExpiredCursor, limit int) ([]*lifecycle.Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM projects
		WHERE status = 'bidding' AND bidding_deadline <= $1
		  AND ($2::timestamptz IS NULL OR (bidding_deadline, id) > ($2::timestamptz, $3::uuid))
		ORDER BY bidding_deadline ASC, id ASC
		LIMIT $4
	`
	var afterDeadline *time.Time
	var afterID *uuid.UUID
	if after != nil {
		afterDeadline, afterID = &after.Deadline, &after.ID
	}

	rows, err := r.pool.Query(ctx, query, now, afterDeadline, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired projects: %w", err)
	}
	defer rows.Close()

	var result []*lifecycle.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return result, nil
}
