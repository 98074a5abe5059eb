package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/trackcollab/pkg/models"
	"github.com/dukex/trackcollab/pkg/persistence"
)

const requestColumns = `id, item_id, requester_id, owner_id, message, requested_parts, assigned_parts,
	grant_full_pack_permissions, status, batch_id, response_message, created_at, updated_at, responded_at`

// RequestRepository mirrors the PostgreSQL repository: a partial unique index holds the
// pending lock and guarded UPDATE/DELETE statements provide the compare-and-swap.
type RequestRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRequestRepository(db *sql.DB, logger *slog.Logger) *RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

func (rr *RequestRepository) Insert(ctx context.Context, req *models.CollaborationRequest) error {
	_, err := rr.db.ExecContext(ctx,
		`INSERT INTO collaboration_requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.ItemID,
		req.RequesterID,
		req.OwnerID,
		req.Message,
		req.RequestedParts.String(),
		req.AssignedParts.String(),
		req.GrantFullPackPermissions,
		string(req.Status),
		nullableString(req.BatchID),
		req.ResponseMessage,
		toNanos(req.CreatedAt),
		toNanos(req.UpdatedAt),
		nullableTime(req),
	)
	if err != nil {
		// SQLite checks the pending index before the key index, so a reused id held by a
		// pending request surfaces as a pending collision.
		if isConstraintError(err) && !isKeyViolation(err, "collaboration_requests") {
			if exists, existsErr := rr.exists(ctx, req.ID); existsErr == nil && exists {
				return persistence.NewRequestError("Insert", req.ID, persistence.ErrRequestAlreadyExists)
			}
		}

		return mapWriteError("Insert", req.ID, err)
	}

	return nil
}

func (rr *RequestRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool

	err := rr.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM collaboration_requests WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check request existence: %w", err)
	}

	return exists, nil
}

func (rr *RequestRepository) GetByID(ctx context.Context, id string) (*models.CollaborationRequest, error) {
	req, err := scanRequest(rr.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM collaboration_requests WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRequestError("GetByID", id, persistence.ErrRequestNotFound)
		}

		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	return req, nil
}

func (rr *RequestRepository) CompareAndSwap(ctx context.Context, expected models.RequestStatus, req *models.CollaborationRequest) error {
	result, err := rr.db.ExecContext(ctx, `
		UPDATE collaboration_requests SET
			assigned_parts = ?,
			grant_full_pack_permissions = ?,
			status = ?,
			response_message = ?,
			updated_at = ?,
			responded_at = ?
		WHERE id = ? AND status = ?`,
		req.AssignedParts.String(),
		req.GrantFullPackPermissions,
		string(req.Status),
		req.ResponseMessage,
		toNanos(req.UpdatedAt),
		nullableTime(req),
		req.ID,
		string(expected),
	)
	if err != nil {
		return mapWriteError("CompareAndSwap", req.ID, err)
	}

	return rr.checkAffected(ctx, "CompareAndSwap", req.ID, result)
}

func (rr *RequestRepository) DeleteIfStatus(ctx context.Context, id string, allowed ...models.RequestStatus) error {
	if len(allowed) == 0 {
		return persistence.NewRequestError("DeleteIfStatus", id, persistence.ErrStatusMismatch)
	}

	args := make([]any, 0, len(allowed)+1)
	args = append(args, id)

	for _, s := range allowed {
		args = append(args, string(s))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(allowed)), ", ")

	result, err := rr.db.ExecContext(ctx,
		`DELETE FROM collaboration_requests WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}

	return rr.checkAffected(ctx, "DeleteIfStatus", id, result)
}

func (rr *RequestRepository) List(ctx context.Context, filter persistence.RequestFilter) ([]*models.CollaborationRequest, error) {
	var (
		conditions []string
		args       []any
	)

	add := func(column string, value any) {
		conditions = append(conditions, column+" = ?")
		args = append(args, value)
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
		req, err := scanRequest(rows)
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

func (rr *RequestRepository) checkAffected(ctx context.Context, op, id string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected > 0 {
		return nil
	}

	exists, err := rr.exists(ctx, id)
	if err != nil {
		return err
	}

	if !exists {
		return persistence.NewRequestError(op, id, persistence.ErrRequestNotFound)
	}

	return persistence.NewRequestError(op, id, persistence.ErrStatusMismatch)
}

// mapWriteError turns constraint failures into persistence errors. The id key is the only
// other unique constraint, so any non-key violation is the pending lock.
func mapWriteError(op, id string, err error) error {
	switch {
	case isKeyViolation(err, "collaboration_requests"):
		return persistence.NewRequestError(op, id, persistence.ErrRequestAlreadyExists)
	case isConstraintError(err):
		return persistence.NewRequestError(op, id, persistence.ErrPendingRequestExists)
	default:
		return fmt.Errorf("failed to %s request %s: %w", strings.ToLower(op), id, err)
	}
}

func scanRequest(scanner interface {
	Scan(dest ...any) error
}) (*models.CollaborationRequest, error) {
	var (
		req                         models.CollaborationRequest
		requested, assigned, status string
		batchID                     sql.NullString
		createdAt, updatedAt        int64
		respondedAt                 sql.NullInt64
	)

	err := scanner.Scan(
		&req.ID,
		&req.ItemID,
		&req.RequesterID,
		&req.OwnerID,
		&req.Message,
		&requested,
		&assigned,
		&req.GrantFullPackPermissions,
		&status,
		&batchID,
		&req.ResponseMessage,
		&createdAt,
		&updatedAt,
		&respondedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = models.RequestStatus(status)

	if req.RequestedParts, err = parseParts(requested); err != nil {
		return nil, fmt.Errorf("stored requested parts: %w", err)
	}

	if req.AssignedParts, err = parseParts(assigned); err != nil {
		return nil, fmt.Errorf("stored assigned parts: %w", err)
	}

	if batchID.Valid {
		req.BatchID = &batchID.String
	}

	if respondedAt.Valid {
		t := fromNanos(respondedAt.Int64)
		req.RespondedAt = &t
	}

	req.CreatedAt = fromNanos(createdAt)
	req.UpdatedAt = fromNanos(updatedAt)

	return &req, nil
}

func parseParts(s string) (models.PartSet, error) {
	if s == "" {
		return models.PartSet{}, nil
	}

	return models.ParsePartSet(strings.Split(s, ","))
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(req *models.CollaborationRequest) sql.NullInt64 {
	if req.RespondedAt == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: toNanos(*req.RespondedAt), Valid: true}
}
