package coupon

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("coupon not found")
	ErrAlreadyRedeemed = errors.New("coupon already redeemed")
	ErrNotStoreOwner   = errors.New("coupon belongs to another store")
	ErrMissingQR       = errors.New("qr required")
)

// Coupon is a reward claimed by a user and redeemed at the issuing store by
// scanning its QR code.
type Coupon struct {
	ID         string     `json:"id"`
	URLQR      string     `json:"urlQR"`
	Redeemed   bool       `json:"canjeado"`
	RewardName string     `json:"nombrePremio"`
	StoreName  string     `json:"nombreTienda"`
	IssuedAt   time.Time  `json:"fecha"`
	RedeemedAt *time.Time `json:"fechaCanje,omitempty"`
}

type RedeemRequest struct {
	QR string `json:"qr"`
}
