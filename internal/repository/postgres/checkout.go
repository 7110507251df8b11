package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/astralisone/astralis-agency-server-sub001/internal/domain"
	"github.com/astralisone/astralis-agency-server-sub001/pkg/database"
	apperrors "github.com/astralisone/astralis-agency-server-sub001/pkg/errors"
)

const attemptColumns = `id, session_id, status, items, amount, currency, provider,
	provider_order_id, capture_id, payer_id, failure_reason, attempts,
	created_at, updated_at`

// CheckoutRepository implements repository.CheckoutRepository using PostgreSQL.
type CheckoutRepository struct {
	db database.DBTX
}

// NewCheckoutRepository creates a PostgreSQL-backed checkout attempt repository.
func NewCheckoutRepository(db database.DBTX) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

// Create inserts a new checkout attempt.
func (r *CheckoutRepository) Create(ctx context.Context, a *domain.CheckoutAttempt) (err error) {
	itemsJSON, err := json.Marshal(a.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	query := `
		INSERT INTO checkout_attempts (` + attemptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	ctx, end := database.TraceQuery(ctx, "CreateCheckoutAttempt", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.SessionID,
		string(a.Status),
		itemsJSON,
		a.Amount,
		a.Currency,
		a.Provider,
		nullableString(a.ProviderOrderID),
		nullableString(a.CaptureID),
		nullableString(a.PayerID),
		nullableString(a.FailureReason),
		a.Attempts,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkout attempt: %w", err)
	}
	return nil
}

// GetByID retrieves a checkout attempt by its ID.
func (r *CheckoutRepository) GetByID(ctx context.Context, id string) (*domain.CheckoutAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts WHERE id = $1`
	a, err := r.scanAttempt(ctx, "GetCheckoutAttempt", query, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("checkout", id)
	}
	return a, err
}

// GetByProviderOrderID retrieves the most recent attempt that created the given provider order.
func (r *CheckoutRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*domain.CheckoutAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM checkout_attempts
		WHERE provider_order_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`
	a, err := r.scanAttempt(ctx, "GetCheckoutAttemptByOrder", query, providerOrderID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("checkout order", providerOrderID)
	}
	return a, err
}

// Update writes the mutable fields of an attempt and bumps updated_at.
func (r *CheckoutRepository) Update(ctx context.Context, a *domain.CheckoutAttempt) (err error) {
	itemsJSON, err := json.Marshal(a.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	a.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE checkout_attempts
		SET status = $1, items = $2, amount = $3, currency = $4,
			provider_order_id = $5, capture_id = $6, payer_id = $7,
			failure_reason = $8, attempts = $9, updated_at = $10
		WHERE id = $11`

	ctx, end := database.TraceQuery(ctx, "UpdateCheckoutAttempt", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		string(a.Status),
		itemsJSON,
		a.Amount,
		a.Currency,
		nullableString(a.ProviderOrderID),
		nullableString(a.CaptureID),
		nullableString(a.PayerID),
		nullableString(a.FailureReason),
		a.Attempts,
		a.UpdatedAt,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update checkout attempt: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("checkout", a.ID)
	}
	return nil
}

// ListBySession returns a session's attempts newest first, with the total
// count across all pages.
func (r *CheckoutRepository) ListBySession(ctx context.Context, sessionID string, page, perPage int) (_ []domain.CheckoutAttempt, _ int, err error) {
	if perPage <= 0 {
		perPage = 20
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * perPage
	}

	query := `SELECT ` + attemptColumns + `, count(*) OVER() AS total_count
		FROM checkout_attempts
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	ctx, end := database.TraceQuery(ctx, "ListCheckoutAttempts", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, sessionID, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list checkout attempts: %w", err)
	}
	defer rows.Close()

	var totalCount int
	attempts := make([]domain.CheckoutAttempt, 0)
	for rows.Next() {
		a, err := scanAttemptRow(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate checkout attempts: %w", err)
	}
	return attempts, totalCount, nil
}

func (r *CheckoutRepository) scanAttempt(ctx context.Context, operation, query string, args ...any) (_ *domain.CheckoutAttempt, err error) {
	ctx, end := database.TraceQuery(ctx, operation, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	a, err := scanAttemptRow(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return a, err
}

// scanAttemptRow scans attemptColumns followed by any extra destinations.
func scanAttemptRow(row pgx.Row, extra ...any) (*domain.CheckoutAttempt, error) {
	var (
		a               domain.CheckoutAttempt
		status          string
		itemsJSON       []byte
		providerOrderID *string
		captureID       *string
		payerID         *string
		failureReason   *string
	)

	dest := []any{
		&a.ID,
		&a.SessionID,
		&status,
		&itemsJSON,
		&a.Amount,
		&a.Currency,
		&a.Provider,
		&providerOrderID,
		&captureID,
		&payerID,
		&failureReason,
		&a.Attempts,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan checkout attempt: %w", err)
	}

	a.Status = domain.CheckoutStatus(status)
	if !domain.IsValidStatus(a.Status) {
		return nil, fmt.Errorf("checkout attempt %s has unknown status %q", a.ID, status)
	}
	if err := json.Unmarshal(itemsJSON, &a.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	a.ProviderOrderID = derefString(providerOrderID)
	a.CaptureID = derefString(captureID)
	a.PayerID = derefString(payerID)
	a.FailureReason = derefString(failureReason)

	return &a, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
