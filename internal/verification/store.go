package verification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bankid-service/internal/db"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Store persists completed verifications so order release can be
// audited later. Personal numbers are stored as bcrypt digests only.
type Store struct {
	db *db.DB
}

func NewStore(db *db.DB) *Store {
	return &Store{db: db}
}

// Record inserts one completed verification. Repeat inserts for the
// same orderRef are no-ops (collect is one-shot, but a retried request
// must not fail here).
func (s *Store) Record(
	ctx context.Context,
	orderRef string,
	personalNumber string,
	completedAt time.Time,
) error {
	digest, err := digestPersonalNumber(personalNumber)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verifications (id, order_ref, personal_number_digest, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_ref) DO NOTHING
	`,
		uuid.NewString(),
		orderRef,
		digest,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("verification: insert: %w", err)
	}
	return nil
}

// Verified reports whether a completed verification exists for the
// given transaction and matches the given identity. Order release
// checks this before handing out order data.
func (s *Store) Verified(
	ctx context.Context,
	orderRef string,
	personalNumber string,
) (bool, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `
		SELECT personal_number_digest
		FROM verifications
		WHERE order_ref = $1
	`, orderRef).Scan(&digest)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return bcrypt.CompareHashAndPassword(
		[]byte(digest),
		[]byte(personalNumber),
	) == nil, nil
}

func digestPersonalNumber(personalNumber string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(
		[]byte(personalNumber),
		bcrypt.DefaultCost,
	)
	if err != nil {
		return "", fmt.Errorf("verification: digest: %w", err)
	}
	return string(bytes), nil
}
