package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("order not found")
	ErrProductUnavailable = errors.New("product not available")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransition  = errors.New("cannot cancel this order")
	ErrLockTimeout        = errors.New("stock lock wait timed out")
)

type Repository interface {
	Place(ctx context.Context, userID string, lines []Line) (*Order, []Item, error)
	Cancel(ctx context.Context, id string) (*Order, []Item, error)
	GetByID(ctx context.Context, id string) (*Order, []Item, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
	ListAll(ctx context.Context, limit, offset int) ([]Order, error)
	GetItems(ctx context.Context, orderID string) ([]Item, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

// sortedByProduct returns a copy of lines ordered by product id so that
// concurrent multi-item orders touching overlapping products always acquire
// their row locks in the same order.
func sortedByProduct(lines []Line) []Line {
	out := append([]Line(nil), lines...)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// mapLockErr translates a lock_timeout abort (SQLSTATE 55P03) into
// ErrLockTimeout so callers can retry explicitly.
func mapLockErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return ErrLockTimeout
	}
	return err
}

// Place creates the order and its items and decrements product stock, all in
// one transaction. Each product row is taken FOR UPDATE before its stock is
// read, so two concurrent orders against the same product serialize and can
// never both observe pre-decrement stock. Any unavailable product or stock
// shortage aborts the whole transaction: no partial decrements survive.
func (r *PGRepo) Place(ctx context.Context, userID string, lines []Line) (*Order, []Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// bounded wait on row locks
	if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '5s'`); err != nil {
		return nil, nil, err
	}

	o := &Order{ID: uuid.NewString(), UserID: userID, Status: StatusPending, Total: "0"}
	if _, err := tx.Exec(ctx, `
    INSERT INTO orders (id, user_id, status, total, created_at, updated_at)
    VALUES ($1,$2,$3,0,NOW(),NOW())
  `, o.ID, o.UserID, o.Status); err != nil {
		return nil, nil, err
	}

	total := decimal.Zero
	items := make([]Item, 0, len(lines))
	for _, ln := range sortedByProduct(lines) {
		var (
			priceStr string
			stock    int
			active   bool
		)
		err := tx.QueryRow(ctx, `
      SELECT price::text, stock, is_active FROM products WHERE id=$1 FOR UPDATE
    `, ln.ProductID).Scan(&priceStr, &stock, &active)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %s", ErrProductUnavailable, ln.ProductID)
		}
		if err != nil {
			return nil, nil, mapLockErr(err)
		}
		if !active {
			return nil, nil, fmt.Errorf("%w: %s", ErrProductUnavailable, ln.ProductID)
		}
		if stock < ln.Quantity {
			return nil, nil, fmt.Errorf("%w: product %s has %d, want %d",
				ErrInsufficientStock, ln.ProductID, stock, ln.Quantity)
		}

		if _, err := tx.Exec(ctx, `
      UPDATE products SET stock = stock - $2 WHERE id=$1
    `, ln.ProductID, ln.Quantity); err != nil {
			return nil, nil, err
		}

		it := Item{
			ID:              uuid.NewString(),
			OrderID:         o.ID,
			ProductID:       ln.ProductID,
			Quantity:        ln.Quantity,
			PriceAtPurchase: priceStr,
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO order_items (id, order_id, product_id, quantity, price_at_purchase)
      VALUES ($1,$2,$3,$4,$5)
    `, it.ID, it.OrderID, it.ProductID, it.Quantity, it.PriceAtPurchase); err != nil {
			return nil, nil, err
		}

		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, nil, fmt.Errorf("bad price for product %s: %w", ln.ProductID, err)
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(ln.Quantity))))
		items = append(items, it)
	}

	o.Total = total.String()
	if err := tx.QueryRow(ctx, `
    UPDATE orders SET total=$2, updated_at=NOW() WHERE id=$1
    RETURNING created_at, updated_at
  `, o.ID, o.Total).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return o, items, nil
}

// Cancel moves a pending/paid order to cancelled and restores stock for every
// item whose product still exists, atomically. Items whose product was deleted
// are skipped (their product_id was nulled, there is nothing to restock).
func (r *PGRepo) Cancel(ctx context.Context, id string) (*Order, []Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '5s'`); err != nil {
		return nil, nil, err
	}

	var st Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, mapLockErr(err)
	}
	if !st.CanCancel() {
		return nil, nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, st)
	}

	rows, err := tx.Query(ctx, `
    SELECT product_id, quantity FROM order_items
    WHERE order_id=$1 AND product_id IS NOT NULL
  `, id)
	if err != nil {
		return nil, nil, err
	}
	var recs []Line
	for rows.Next() {
		var x Line
		if err := rows.Scan(&x.ProductID, &x.Quantity); err != nil {
			rows.Close()
			return nil, nil, err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	// restock in product-id order, same lock order as Place, so a cancel
	// racing a placement on overlapping products cannot deadlock
	for _, x := range sortedByProduct(recs) {
		// 0 rows affected means the product vanished between the item query
		// and here; skip it, same as a nulled product_id
		if _, err := tx.Exec(ctx, `
      UPDATE products SET stock = stock + $2 WHERE id=$1
    `, x.ProductID, x.Quantity); err != nil {
			return nil, nil, mapLockErr(err)
		}
	}

	if _, err := tx.Exec(ctx, `
    UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1
  `, id, StatusCancelled); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, []Item, error) {
	var o Order
	if err := r.db.QueryRow(ctx, `
    SELECT id,user_id,status,total::text,created_at,updated_at
    FROM orders WHERE id=$1
  `, id).Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	items, err := r.GetItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &o, items, nil
}

func (r *PGRepo) GetItems(ctx context.Context, orderID string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
    SELECT id, order_id, product_id, quantity, price_at_purchase::text
    FROM order_items
    WHERE order_id = $1
  `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var pid *string
		if err := rows.Scan(&it.ID, &it.OrderID, &pid, &it.Quantity, &it.PriceAtPurchase); err != nil {
			return nil, err
		}
		if pid != nil {
			it.ProductID = *pid
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := r.db.Query(ctx, `
    SELECT id,user_id,status,total::text,created_at,updated_at
    FROM orders WHERE user_id=$1
    ORDER BY created_at DESC LIMIT $2 OFFSET $3
  `, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *PGRepo) ListAll(ctx context.Context, limit, offset int) ([]Order, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := r.db.Query(ctx, `
    SELECT id,user_id,status,total::text,created_at,updated_at
    FROM orders
    ORDER BY created_at DESC LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanOrders(rows pgx.Rows) ([]Order, error) {
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
