package practitioner

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRepo struct{ pool *pgxpool.Pool }

func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

const practitionerCols = `id, person_id, specialty, npi, active, created_at, updated_at`

func (r *pgRepo) scanRow(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.PersonID, &p.Specialty, &p.NPI, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *pgRepo) Create(ctx context.Context, p *Practitioner) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO practitioner (id, person_id, specialty, npi, active)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		p.ID, p.PersonID, p.Specialty, p.NPI, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *pgRepo) GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+practitionerCols+` FROM practitioner WHERE id = $1`, id)
	return r.scanRow(row)
}

func (r *pgRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Practitioner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+practitionerCols+` FROM practitioner WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Practitioner
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *pgRepo) Update(ctx context.Context, p *Practitioner) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE practitioner SET person_id=$2, specialty=$3, npi=$4, active=$5, updated_at=now()
		WHERE id = $1`,
		p.ID, p.PersonID, p.Specialty, p.NPI, p.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM practitioner WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepo) List(ctx context.Context, limit, offset int) ([]*Practitioner, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM practitioner`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+practitionerCols+` FROM practitioner
		ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Practitioner
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
