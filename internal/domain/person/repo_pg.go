package person

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

const personCols = `id, active, first_name, last_name, gender, birth_date,
	phone, email, created_at, updated_at`

func (r *pgRepo) scanRow(row pgx.Row) (*Person, error) {
	var p Person
	err := row.Scan(&p.ID, &p.Active, &p.FirstName, &p.LastName, &p.Gender, &p.BirthDate,
		&p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *pgRepo) Create(ctx context.Context, p *Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO person (id, active, first_name, last_name, gender, birth_date, phone, email)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.Active, p.FirstName, p.LastName, p.Gender, p.BirthDate, p.Phone, p.Email,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *pgRepo) GetByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+personCols+` FROM person WHERE id = $1`, id)
	return r.scanRow(row)
}

func (r *pgRepo) Update(ctx context.Context, p *Person) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE person SET active=$2, first_name=$3, last_name=$4, gender=$5,
			birth_date=$6, phone=$7, email=$8, updated_at=now()
		WHERE id = $1`,
		p.ID, p.Active, p.FirstName, p.LastName, p.Gender, p.BirthDate, p.Phone, p.Email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM person WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgRepo) List(ctx context.Context, limit, offset int) ([]*Person, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM person`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+personCols+` FROM person
		ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Person
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
