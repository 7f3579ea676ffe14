package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/bike-help/internal/models"
)

type PostgresAlertLog struct {
	db *sql.DB
}

func NewPostgresAlertLog(dsn string) (*PostgresAlertLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresAlertLog{db: db}, nil
}

func (p *PostgresAlertLog) SaveAlert(ctx context.Context, a *models.Alert) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO alerts(user_id, point_id, title, body, created_at) VALUES($1,$2,$3,$4,$5)`,
		a.UserID, a.PointID, a.Title, a.Body, a.At)
	return err
}

func (p *PostgresAlertLog) RecentAlerts(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT user_id, point_id, title, body, created_at FROM alerts WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.UserID, &a.PointID, &a.Title, &a.Body, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
