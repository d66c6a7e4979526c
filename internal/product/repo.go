// Package product provides the repository interface and PostgreSQL implementation for managing products.
package product

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("product not found")
)

type Query struct {
	OnlyActive bool
	Q          string // substring match on name, case-insensitive
	Limit      int
	Offset     int
}

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, q Query) ([]Product, error)
	Update(ctx context.Context, id string, patch Patch) (*Product, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, p *Product) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.QueryRow(ctx, `
		INSERT INTO products (id, owner_id, name, description, price, stock, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
		RETURNING created_at, updated_at
	`, p.ID, p.OwnerID, p.Name, p.Description, p.Price, p.Stock, p.IsActive).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var p Product
	var imageKey *string
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, name, description, price::text, stock, image_key, is_active, created_at, updated_at
		FROM products WHERE id=$1
	`, id).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &p.Stock, &imageKey, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	if imageKey != nil {
		p.ImageKey = *imageKey
	}
	return &p, nil
}

func (r *PGRepo) List(ctx context.Context, q Query) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, name, description, price::text, stock, image_key, is_active, created_at, updated_at
		FROM products
		WHERE ($1 = false OR is_active)
		  AND ($2 = '' OR name ILIKE '%'||$2||'%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, q.OnlyActive, q.Q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		var imageKey *string
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Price, &p.Stock, &imageKey, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if imageKey != nil {
			p.ImageKey = *imageKey
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update applies only the fields present in the patch. Stock updated here is
// the product-edit path; the order workflow mutates stock exclusively inside
// its own transaction.
func (r *PGRepo) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE products
		SET name        = COALESCE($2, name),
		    description = COALESCE($3, description),
		    price       = COALESCE($4::numeric, price),
		    stock       = COALESCE($5, stock),
		    image_key   = COALESCE($6, image_key),
		    is_active   = COALESCE($7, is_active),
		    updated_at  = NOW()
		WHERE id = $1
	`, id, patch.Name, patch.Description, patch.Price, patch.Stock, patch.ImageKey, patch.IsActive)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *PGRepo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd, err := r.db.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}
