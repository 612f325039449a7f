package store

import (
	"context"
	"errors"

	"backend-bikevillage/internal/db"

	"github.com/jackc/pgx/v5"
)

const (
	defaultRadiusKm = 5
	maxRadiusKm     = 50
	listLimit       = 50
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// List returns stores matching q. With a position the results are limited to
// the radius and ordered nearest first; otherwise they are ordered by name.
func (s *Service) List(ctx context.Context, q Query) ([]Store, error) {
	radius := q.RadiusKm
	if radius <= 0 {
		radius = defaultRadiusKm
	}
	if radius > maxRadiusKm {
		radius = maxRadiusKm
	}
	var lng, lat *float64
	if q.Lat != nil && q.Lng != nil {
		lng, lat = q.Lng, q.Lat
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, owner_id, name, COALESCE(category,''), COALESCE(discount,''), COALESCE(address,''), COALESCE(phone,''),
		       COALESCE(ST_Y(location::geometry),0), COALESCE(ST_X(location::geometry),0),
		       CASE WHEN $1::float8 IS NULL THEN NULL
		            ELSE ST_Distance(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography) / 1000 END,
		       created_at
		FROM stores
		WHERE ($1::float8 IS NULL OR ST_DWithin(location, ST_SetSRID(ST_MakePoint($1,$2), 4326)::geography, $3))
		  AND ($4 = '' OR category=$4)
		  AND ($5 = '' OR name ILIKE '%' || $5 || '%')
		ORDER BY 10 NULLS LAST, name
		LIMIT $6
	`, lng, lat, radius*1000, q.Category, q.Text, listLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Store{}
	for rows.Next() {
		var st Store
		if err := rows.Scan(&st.ID, &st.OwnerID, &st.Name, &st.Category, &st.Discount, &st.Address, &st.Phone,
			&st.Lat, &st.Lng, &st.DistanceKm, &st.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, st)
	}
	return results, rows.Err()
}

func (s *Service) Get(ctx context.Context, id string) (Store, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, owner_id, name, COALESCE(category,''), COALESCE(discount,''), COALESCE(address,''), COALESCE(phone,''),
		       COALESCE(ST_Y(location::geometry),0), COALESCE(ST_X(location::geometry),0), created_at
		FROM stores WHERE id=$1
	`, id)
	var st Store
	if err := row.Scan(&st.ID, &st.OwnerID, &st.Name, &st.Category, &st.Discount, &st.Address, &st.Phone,
		&st.Lat, &st.Lng, &st.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Store{}, ErrNotFound
		}
		return Store{}, err
	}
	return st, nil
}
