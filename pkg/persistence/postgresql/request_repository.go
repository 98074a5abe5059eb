package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/lib/pq"
)

const (
	uniqueViolation      = "23505"
	pendingLockIndexName = "idx_collaboration_requests_pending"

	requestColumns = `id, item_id, requester_id, owner_id, message, requested_parts, assigned_parts,
		grant_full_pack_permissions, status, batch_id, response_message, created_at, updated_at, responded_at`
)

// RequestRepository handles collaboration request persistence in PostgreSQL.
// The pending lock is a partial unique index; CAS is an UPDATE guarded by the expected status.
type RequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *sql.DB, logger *slog.Logger) *RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

// Insert stores a new request; the partial unique index rejects a second pending request.
func (rr *RequestRepository) Insert(ctx context.Context, req *models.CollaborationRequest) error {
	query := `
		INSERT INTO collaboration_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := rr.db.ExecContext(ctx, query,
		req.ID,
		req.ItemID,
		req.RequesterID,
		req.OwnerID,
		req.Message,
		pq.Array(req.RequestedParts.Strings()),
		pq.Array(req.AssignedParts.Strings()),
		req.GrantFullPackPermissions,
		string(req.Status),
		nullableString(req.BatchID),
		req.ResponseMessage,
		req.CreatedAt,
		req.UpdatedAt,
		req.RespondedAt,
	)
	if err != nil {
		return rr.mapWriteError("Insert", req.ID, err)
	}

	return nil
}

// GetByID retrieves a request by its ID.
func (rr *RequestRepository) GetByID(ctx context.Context, id string) (*models.CollaborationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM collaboration_requests WHERE id = $1`

	req, err := rr.scanRequest(rr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	return req, nil
}

// CompareAndSwap updates every mutable column when the row still carries the expected status.
func (rr *RequestRepository) CompareAndSwap(ctx context.Context, expected models.RequestStatus, req *models.CollaborationRequest) error {
	query := `
		UPDATE collaboration_requests SET
			assigned_parts = $3,
			grant_full_pack_permissions = $4,
			status = $5,
			response_message = $6,
			updated_at = $7,
			responded_at = $8
		WHERE id = $1 AND status = $2
	`

	result, err := rr.db.ExecContext(ctx, query,
		req.ID,
		string(expected),
		pq.Array(req.AssignedParts.Strings()),
		req.GrantFullPackPermissions,
		string(req.Status),
		req.ResponseMessage,
		req.UpdatedAt,
		req.RespondedAt,
	)
	if err != nil {
		return rr.mapWriteError("CompareAndSwap", req.ID, err)
	}

	return rr.checkAffected(ctx, "CompareAndSwap", req.ID, result)
}

// DeleteIfStatus removes the request only when its status is one of allowed.
func (rr *RequestRepository) DeleteIfStatus(ctx context.Context, id string, allowed ...models.RequestStatus) error {
	statuses := make([]string, len(allowed))
	for i, s := range allowed {
		statuses[i] = string(s)
	}

	result, err := rr.db.ExecContext(ctx,
		`DELETE FROM collaboration_requests WHERE id = $1 AND status = ANY($2)`,
		id, pq.Array(statuses),
	)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}

	return rr.checkAffected(ctx, "DeleteIfStatus", id, result)
}

// List returns matching requests, newest first.
func (rr *RequestRepository) List(ctx context.Context, filter persistence.RequestFilter) ([]*models.CollaborationRequest, error) {
	var (
		conditions []string
		args       []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}

	if filter.OwnerID != "" {
		add("owner_id", filter.OwnerID)
	}

	if filter.RequesterID != "" {
		add("requester_id", filter.RequesterID)
	}

	if filter.ItemID != "" {
		add("item_id", filter.ItemID)
	}

	if filter.BatchID != "" {
		add("batch_id", filter.BatchID)
	}

	if filter.Status != nil {
		add("status", string(*filter.Status))
	}

	query := `SELECT ` + requestColumns + ` FROM collaboration_requests`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC, id ASC"

	rows, err := rr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			rr.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	requests := make([]*models.CollaborationRequest, 0)

	for rows.Next() {
		req, err := rr.scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}

		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}

	return requests, nil
}

// checkAffected distinguishes a lost race from a missing row when a guarded write touched nothing.
func (rr *RequestRepository) checkAffected(ctx context.Context, op, id string, result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = rr.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM collaboration_requests WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check request existence: %w", err)
	}

	if !exists {
		return persistence.NewRequestError(op, id, persistence.ErrRequestNotFound)
	}

	rr.logger.DebugContext(ctx, "guarded write lost against a concurrent writer", "op", op, "request_id", id)

	return persistence.NewRequestError(op, id, persistence.ErrStatusMismatch)
}

func (rr *RequestRepository) mapWriteError(op, id string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == pendingLockIndexName {
			return persistence.NewRequestError(op, id, persistence.ErrPendingRequestExists)
		}

		return persistence.NewRequestError(op, id, persistence.ErrRequestAlreadyExists)
	}

	return fmt.Errorf("failed to %s request %s: %w", strings.ToLower(op), id, err)
}

// scanRequest scans a request from a database row.
func (rr *RequestRepository) scanRequest(scanner interface {
	Scan(dest ...any) error
}) (*models.CollaborationRequest, error) {
	var (
		req                 models.CollaborationRequest
		requested, assigned []string
		status              string
		batchID             sql.NullString
		respondedAt         sql.NullTime
	)

	err := scanner.Scan(
		&req.ID,
		&req.ItemID,
		&req.RequesterID,
		&req.OwnerID,
		&req.Message,
		pq.Array(&requested),
		pq.Array(&assigned),
		&req.GrantFullPackPermissions,
		&status,
		&batchID,
		&req.ResponseMessage,
		&req.CreatedAt,
		&req.UpdatedAt,
		&respondedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = models.RequestStatus(status)

	if req.RequestedParts, err = models.ParsePartSet(requested); err != nil {
		return nil, fmt.Errorf("stored requested parts: %w", err)
	}

	if req.AssignedParts, err = models.ParsePartSet(assigned); err != nil {
		return nil, fmt.Errorf("stored assigned parts: %w", err)
	}

	if batchID.Valid {
		req.BatchID = &batchID.String
	}

	if respondedAt.Valid {
		t := respondedAt.Time.UTC()
		req.RespondedAt = &t
	}

	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()

	return &req, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}
