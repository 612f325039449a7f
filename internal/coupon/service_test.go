package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var couponColumns = []string{"id", "url_qr", "redeemed", "reward", "store", "issued_at", "redeemed_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestForUser(t *testing.T) {
	mock := newMock(t)
	issued := time.Now()
	used := issued.Add(time.Hour)
	mock.ExpectQuery(`SELECT c.id, c.url_qr, c.redeemed`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(couponColumns).
			AddRow("c-1", "QR-1", false, "Cafe gratis", "Cafe Central", issued, (*time.Time)(nil)).
			AddRow("c-2", "QR-2", true, "10% OFF", "Bici Taller", issued, &used))

	items, err := NewService(mock).ForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	if len(items) != 2 || items[0].Redeemed || items[0].RedeemedAt != nil || !items[1].Redeemed || items[1].RedeemedAt == nil {
		t.Fatalf("unexpected coupons %+v", items)
	}
}

func TestRedeem(t *testing.T) {
	mock := newMock(t)
	issued := time.Now()
	used := issued.Add(time.Minute)
	mock.ExpectQuery(`UPDATE coupons c`).
		WithArgs("QR-1", "owner-1", false).
		WillReturnRows(pgxmock.NewRows(couponColumns).
			AddRow("c-1", "QR-1", true, "Cafe gratis", "Cafe Central", issued, &used))

	c, err := NewService(mock).Redeem(context.Background(), " QR-1 ", "owner-1", false)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !c.Redeemed || c.RedeemedAt == nil {
		t.Fatalf("expected redeemed coupon, got %+v", c)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedeemFailures(t *testing.T) {
	cases := []struct {
		name    string
		admin   bool
		lookup  func(*pgxmock.ExpectedQuery)
		wantErr error
	}{
		{
			name:    "unknown",
			lookup:  func(q *pgxmock.ExpectedQuery) { q.WillReturnError(pgx.ErrNoRows) },
			wantErr: ErrNotFound,
		},
		{
			name: "already redeemed",
			lookup: func(q *pgxmock.ExpectedQuery) {
				q.WillReturnRows(pgxmock.NewRows([]string{"redeemed", "owner_id"}).AddRow(true, "owner-1"))
			},
			wantErr: ErrAlreadyRedeemed,
		},
		{
			name: "other store",
			lookup: func(q *pgxmock.ExpectedQuery) {
				q.WillReturnRows(pgxmock.NewRows([]string{"redeemed", "owner_id"}).AddRow(false, "owner-2"))
			},
			wantErr: ErrNotStoreOwner,
		},
		{
			name:  "admin on redeemed coupon",
			admin: true,
			lookup: func(q *pgxmock.ExpectedQuery) {
				q.WillReturnRows(pgxmock.NewRows([]string{"redeemed", "owner_id"}).AddRow(true, "owner-2"))
			},
			wantErr: ErrAlreadyRedeemed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := newMock(t)
			mock.ExpectQuery(`UPDATE coupons c`).
				WithArgs("QR-1", "owner-1", tc.admin).
				WillReturnError(pgx.ErrNoRows)
			tc.lookup(mock.ExpectQuery(`SELECT c.redeemed`).WithArgs("QR-1"))

			_, err := NewService(mock).Redeem(context.Background(), "QR-1", "owner-1", tc.admin)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRedeemMissingQR(t *testing.T) {
	if _, err := NewService(nil).Redeem(context.Background(), "  ", "owner-1", false); !errors.Is(err, ErrMissingQR) {
		t.Fatalf("expected ErrMissingQR, got %v", err)
	}
}
