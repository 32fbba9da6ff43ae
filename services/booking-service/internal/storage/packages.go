package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

func (s *Store) ListPackages(ctx context.Context) ([]model.Package, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, name, COALESCE(description, ''), price::text, duration_minutes
		FROM packages
		ORDER BY price ASC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packages []model.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

func (s *Store) GetPackage(ctx context.Context, id string) (model.Package, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(description, ''), price::text, duration_minutes
		FROM packages
		WHERE id = $1
	`, id)
	p, err := scanPackage(row)
	if err != nil {
		return model.Package{}, translate(err)
	}
	return p, nil
}

func scanPackage(row pgx.Row) (model.Package, error) {
	var p model.Package
	var price string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.DurationMinutes); err != nil {
		return model.Package{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Package{}, err
	}
	p.Price = d
	return p, nil
}
