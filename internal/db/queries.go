package db

import (
	"context"

	"github.com/HanTheDev/payload-listener/internal/models"
)

func (db *DB) LogObservation(ctx context.Context, obs *models.Observation) error {
	query := `
        INSERT INTO observations (method, url, remote_addr, body, body_size, rendered, status_code, parse_error, received_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

	_, err := db.Pool.Exec(ctx, query,
		obs.Method,
		obs.URL,
		obs.RemoteAddr,
		obs.Body,
		obs.BodySize,
		obs.Rendered,
		obs.StatusCode,
		obs.ParseError,
		obs.ReceivedAt,
	)

	return err
}

func (db *DB) RecentObservations(ctx context.Context, limit int) ([]*models.Observation, error) {
	query := `
        SELECT id, method, url, remote_addr, body, body_size, rendered, status_code, parse_error, received_at
        FROM observations
        ORDER BY id DESC
        LIMIT $1
    `

	rows, err := db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []*models.Observation
	for rows.Next() {
		var obs models.Observation
		if err := rows.Scan(
			&obs.ID,
			&obs.Method,
			&obs.URL,
			&obs.RemoteAddr,
			&obs.Body,
			&obs.BodySize,
			&obs.Rendered,
			&obs.StatusCode,
			&obs.ParseError,
			&obs.ReceivedAt,
		); err != nil {
			return nil, err
		}
		observations = append(observations, &obs)
	}

	return observations, rows.Err()
}
