package coupon

import (
	"context"
	"errors"
	"strings"

	"backend-bikevillage/internal/db"

	"github.com/jackc/pgx/v5"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) ForUser(ctx context.Context, userID string) ([]Coupon, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.url_qr, c.redeemed, r.name, st.name, c.issued_at, c.redeemed_at
		FROM coupons c
		JOIN rewards r ON r.id = c.reward_id
		JOIN stores st ON st.id = r.store_id
		WHERE c.user_id=$1
		ORDER BY c.issued_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Coupon{}
	for rows.Next() {
		var c Coupon
		if err := rows.Scan(&c.ID, &c.URLQR, &c.Redeemed, &c.RewardName, &c.StoreName, &c.IssuedAt, &c.RedeemedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// Redeem marks the coupon identified by qr as used. Store accounts may only
// redeem coupons of their own store; admins may redeem any.
func (s *Service) Redeem(ctx context.Context, qr, userID string, admin bool) (Coupon, error) {
	qr = strings.TrimSpace(qr)
	if qr == "" {
		return Coupon{}, ErrMissingQR
	}

	var c Coupon
	err := s.db.QueryRow(ctx, `
		UPDATE coupons c
		SET redeemed=true, redeemed_at=now()
		FROM rewards r
		JOIN stores st ON st.id = r.store_id
		WHERE r.id = c.reward_id AND c.url_qr=$1 AND c.redeemed=false AND ($3 OR st.owner_id=$2)
		RETURNING c.id, c.url_qr, c.redeemed, r.name, st.name, c.issued_at, c.redeemed_at
	`, qr, userID, admin).Scan(&c.ID, &c.URLQR, &c.Redeemed, &c.RewardName, &c.StoreName, &c.IssuedAt, &c.RedeemedAt)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, err
	}
	return Coupon{}, s.whyNotRedeemed(ctx, qr, userID, admin)
}

func (s *Service) whyNotRedeemed(ctx context.Context, qr, userID string, admin bool) error {
	var redeemed bool
	var ownerID string
	err := s.db.QueryRow(ctx, `
		SELECT c.redeemed, COALESCE(st.owner_id::text, '')
		FROM coupons c
		JOIN rewards r ON r.id = c.reward_id
		JOIN stores st ON st.id = r.store_id
		WHERE c.url_qr=$1
	`, qr).Scan(&redeemed, &ownerID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	case !admin && ownerID != userID:
		return ErrNotStoreOwner
	default:
		// either redeemed before, or by a concurrent request
		return ErrAlreadyRedeemed
	}
}
