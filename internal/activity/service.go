package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-bikevillage/internal/db"
	"backend-bikevillage/internal/tracker"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb/encoding/wkt"
)

const listLimit = 100

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// SaveRecording stores a finished tracker recording. It satisfies
// tracker.Recorder.
func (s *Service) SaveRecording(ctx context.Context, userID string, rec tracker.Recording) error {
	_, err := s.Save(ctx, userID, rec)
	return err
}

func (s *Service) Save(ctx context.Context, userID string, rec tracker.Recording) (Activity, error) {
	if len(rec.Path) < 2 {
		return Activity{}, errors.New("recording needs at least two points")
	}

	a := Activity{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         "Ruta " + rec.StartedAt.Local().Format("02/01/2006 15:04"),
		StartedAt:    rec.StartedAt,
		EndedAt:      rec.EndedAt,
		DistanceKm:   rec.Stats.DistanceKm,
		DurationMin:  rec.Stats.DurationMin,
		PaceMinPerKm: rec.Stats.PaceMinPerKm,
		AvgSpeedKmh:  averageSpeed(rec.Stats.DistanceKm, rec.Stats.DurationMin),
		Path:         rec.Path,
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO activities (id, user_id, name, started_at, ended_at, distance_km, duration_min, pace_min_per_km, avg_speed_kmh, path)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, ST_GeogFromText($10))
		RETURNING created_at
	`, a.ID, a.UserID, a.Name, a.StartedAt, a.EndedAt, a.DistanceKm, a.DurationMin, a.PaceMinPerKm, a.AvgSpeedKmh,
		wkt.MarshalString(a.Path))
	if err := row.Scan(&a.CreatedAt); err != nil {
		return Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	return a, nil
}

// List returns the user's activities, newest first, without their paths.
func (s *Service) List(ctx context.Context, userID string) ([]Activity, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, name, started_at, ended_at, distance_km, duration_min, pace_min_per_km, avg_speed_kmh, created_at
		FROM activities
		WHERE user_id=$1
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, listLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Activity{}
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.StartedAt, &a.EndedAt, &a.DistanceKm, &a.DurationMin,
			&a.PaceMinPerKm, &a.AvgSpeedKmh, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *Service) Get(ctx context.Context, userID, id string) (Activity, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, started_at, ended_at, distance_km, duration_min, pace_min_per_km, avg_speed_kmh, created_at,
			ST_AsText(path)
		FROM activities
		WHERE id=$1 AND user_id=$2
	`, id, userID)

	var a Activity
	var pathWKT string
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.StartedAt, &a.EndedAt, &a.DistanceKm, &a.DurationMin,
		&a.PaceMinPerKm, &a.AvgSpeedKmh, &a.CreatedAt, &pathWKT); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Activity{}, ErrNotFound
		}
		return Activity{}, err
	}

	path, err := wkt.UnmarshalLineString(pathWKT)
	if err != nil {
		return Activity{}, fmt.Errorf("decode path: %w", err)
	}
	a.Path = path
	return a, nil
}

func averageSpeed(distanceKm, durationMin float64) float64 {
	if durationMin <= 0 {
		return 0
	}
	return distanceKm / (durationMin / 60)
}

func (a Activity) Duration() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}
