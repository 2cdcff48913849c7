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

const bidColumns = `id, project_id, bidder_id, amount, comment, delivery_date, status::text, created_at, updated_at`

// projectOpenForBids guards bid writes: the project must still be bidding and
// its deadline after $now. FOR SHARE makes a concurrent close wait for us.
const projectOpenForBids = `
	SELECT 1 FROM projects p
	WHERE p.id = %s AND p.status = 'bidding' AND p.bidding_deadline > %s
	FOR SHARE
`

// uniqueBidPerBidder is the constraint enforcing one bid per bidder and project
const uniqueBidPerBidder = "bids_project_bidder_key"

// PostgresBidRepository implements lifecycle.BidRepository using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool // Keep pool for read-only operations
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

func scanBid(row pgx.Row) (*lifecycle.Bid, error) {
	var b lifecycle.Bid
	err := row.Scan(
		&b.ID,
		&b.ProjectID,
		&b.BidderID,
		&b.Amount,
		&b.Comment,
		&b.DeliveryDate,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBids(rows pgx.Rows) ([]*lifecycle.Bid, error) {
	defer rows.Close()

	result := []*lifecycle.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}

// SaveBid inserts the bid only while its project accepts bids.
// No existence check precedes the insert; the unique constraint decides.
func (r *PostgresBidRepository) SaveBid(ctx context.Context, tx pgx.Tx, bid *lifecycle.Bid, now time.Time) (int64, error) {
	query := `
		INSERT INTO bids (id, project_id, bidder_id, amount, comment, delivery_date, status, created_at, updated_at)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::bigint, $5::text, $6::timestamptz,
			'pending'::bid_status, $7::timestamptz, $8::timestamptz
		WHERE EXISTS (` + fmt.Sprintf(projectOpenForBids, "$2::uuid", "$9::timestamptz") + `)
	`
	result, err := tx.Exec(ctx, query,
		bid.ID,
		bid.ProjectID,
		bid.BidderID,
		bid.Amount,
		bid.Comment,
		bid.DeliveryDate,
		bid.CreatedAt,
		bid.UpdatedAt,
		now,
	)
	if err != nil {
		if pkgdb.IsUniqueViolation(err, uniqueBidPerBidder) {
			return 0, lifecycle.ErrDuplicateBid
		}
		return 0, fmt.Errorf("failed to insert bid: %w", err)
	}
	return result.RowsAffected(), nil
}

// GetBid retrieves a bid by its ID
func (r *PostgresBidRepository) GetBid(ctx context.Context, bidID uuid.UUID) (*lifecycle.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`

	b, err := scanBid(r.pool.QueryRow(ctx, query, bidID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lifecycle.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return b, nil
}

// ListBids retrieves all bids of a project, lowest amount first
func (r *PostgresBidRepository) ListBids(ctx context.Context, projectID uuid.UUID) ([]*lifecycle.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE project_id = $1
		ORDER BY amount ASC, created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	return collectBids(rows)
}

// ListBidsByStatus retrieves the project's bids in the given status
func (r *PostgresBidRepository) ListBidsByStatus(ctx context.Context, projectID uuid.UUID, status lifecycle.BidStatus) ([]*lifecycle.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE project_id = $1 AND status = $2::text::bid_status
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, projectID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	return collectBids(rows)
}

// AmendBid rewrites a pending bid while its project is open
func (r *PostgresBidRepository) AmendBid(ctx context.Context, tx pgx.Tx, bid *lifecycle.Bid, now time.Time) (int64, error) {
	query := `
		UPDATE bids
		SET amount = $2, comment = $3, delivery_date = $4, updated_at = $5
		WHERE id = $1
		  AND status = 'pending'
		  AND EXISTS (` + fmt.Sprintf(projectOpenForBids, "bids.project_id", "$6") + `)
	`
	result, err := tx.Exec(ctx, query,
		bid.ID,
		bid.Amount,
		bid.Comment,
		bid.DeliveryDate,
		bid.UpdatedAt,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to amend bid: %w", err)
	}
	return result.RowsAffected(), nil
}

// WithdrawBid withdraws a pending bid unless its project is awarded or completed
func (r *PostgresBidRepository) WithdrawBid(ctx context.Context, tx pgx.Tx, bidID uuid.UUID) (int64, error) {
	query := `
		UPDATE bids
		SET status = 'withdrawn', updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND EXISTS (
			SELECT 1 FROM projects p
			WHERE p.id = bids.project_id AND p.status NOT IN ('awarded', 'completed')
			FOR SHARE
		  )
	`
	result, err := tx.Exec(ctx, query, bidID)
	if err != nil {
		return 0, fmt.Errorf("failed to withdraw bid: %w", err)
	}
	return result.RowsAffected(), nil
}

// MarkBidWon flips a pending bid of the project to won
func (r *PostgresBidRepository) MarkBidWon(ctx context.Context, tx pgx.Tx, projectID, bidID uuid.UUID) (int64, error) {
	query := `
		UPDATE bids
		SET status = 'won', updated_at = NOW()
		WHERE id = $1 AND project_id = $2 AND status = 'pending'
	`
	result, err := tx.Exec(ctx, query, bidID, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark bid won: %w", err)
	}
	return result.RowsAffected(), nil
}

// MarkCompetingLost flips every other pending bid of the project to lost
func (r *PostgresBidRepository) MarkCompetingLost(ctx context.Context, tx pgx.Tx, projectID, winnerID uuid.UUID) ([]*lifecycle.Bid, error) {
	query := `
		UPDATE bids
		SET status = 'lost', updated_at = NOW()
		WHERE project_id = $1 AND id <> $2 AND status = 'pending'
		RETURNING ` + bidColumns
	rows, err := tx.Query(ctx, query, projectID, winnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark competing bids lost: %w", err)
	}
	return collectBids(rows)
}

// ResetBids reverts won and lost bids of the project to pending
func (r *PostgresBidRepository) ResetBids(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int64, error) {
	query := `
		UPDATE bids
		SET status = 'pending', updated_at = NOW()
		WHERE project_id = $1 AND status IN ('won', 'lost')
	`
	result, err := tx.Exec(ctx, query, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset bids: %w", err)
	}
	return result.RowsAffected(), nil
}
