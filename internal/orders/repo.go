package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var ErrNotFound = errors.New("order not found")

// PlaceResult is what a checkout sees from the two-part write. OrderID
// is set whenever the header committed, regardless of the items.
type PlaceResult struct {
	OrderID        string
	CreatedAt      time.Time
	ItemsPersisted bool
	ItemsErr       error
}

// PlaceOrder runs the two sequential writes behind one operation:
// header first (store assigns the id), then the line items stamped with
// that id. The writes are deliberately NOT one transaction. If the
// header insert fails nothing is persisted and the checkout fails. If
// the items insert fails afterwards the header stays committed -- the
// payment is already taken -- and the caller gets ItemsPersisted=false
// with a nil error.
func (r *Repo) PlaceOrder(ctx context.Context, d Draft) (PlaceResult, error) {
	var res PlaceResult
	err := r.DB.QueryRow(ctx, `
		INSERT INTO orders(order_type, payment_method, total_amount, cash_given, change_returned, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', now())
		RETURNING id, created_at
	`, d.OrderType, d.PaymentMethod, d.TotalAmount, d.CashGiven, d.ChangeReturned).Scan(&res.OrderID, &res.CreatedAt)
	if err != nil {
		return PlaceResult{}, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range d.Items {
		_, err := r.DB.Exec(ctx, `
			INSERT INTO order_items(order_id, product_name, price, qty)
			VALUES ($1, $2, $3, $4)
		`, res.OrderID, it.ProductName, it.Price, it.Qty)
		if err != nil {
			// No rollback of the header here; see above.
			res.ItemsErr = fmt.Errorf("insert order items: %w", err)
			return res, nil
		}
	}
	res.ItemsPersisted = true
	return res, nil
}

// ListOpen returns orders not yet done, oldest first, bounded to limit.
// NULL status counts as pending, hence IS DISTINCT FROM.
func (r *Repo) ListOpen(ctx context.Context, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_type, payment_method, total_amount, cash_given, change_returned,
		       COALESCE(status, 'pending'), created_at
		FROM orders
		WHERE status IS DISTINCT FROM 'done'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	out, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListHistory returns the most recent orders first, for the admin view.
func (r *Repo) ListHistory(ctx context.Context, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_type, payment_method, total_amount, cash_given, change_returned,
		       COALESCE(status, 'pending'), created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_type, payment_method, total_amount, cash_given, change_returned,
		       COALESCE(status, 'pending'), created_at
		FROM orders WHERE id=$1
	`, id).Scan(&o.ID, &o.OrderType, &o.PaymentMethod, &o.TotalAmount, &o.CashGiven,
		&o.ChangeReturned, &o.Status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	list := []Order{o}
	if err := r.attachItems(ctx, list); err != nil {
		return Order{}, err
	}
	return list[0], nil
}

// MarkDone flips pending -> done. Already-done rows are a no-op: the
// transition happens at most once.
func (r *Repo) MarkDone(ctx context.Context, id string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET status='done'
		WHERE id=$1 AND status IS DISTINCT FROM 'done'
	`, id)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, price, category, COALESCE(img, '') FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Img); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, name, price, category, COALESCE(img, '') FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Img)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product not found: %s", id)
	}
	return p, err
}

func scanOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderType, &o.PaymentMethod, &o.TotalAmount,
			&o.CashGiven, &o.ChangeReturned, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) attachItems(ctx context.Context, os []Order) error {
	if len(os) == 0 {
		return nil
	}
	ids := make([]string, 0, len(os))
	idx := map[string]int{}
	for i, o := range os {
		ids = append(ids, o.ID)
		idx[o.ID] = i
	}
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_name, price, qty FROM order_items WHERE order_id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductName, &it.Price, &it.Qty); err != nil {
			return err
		}
		if i, ok := idx[it.OrderID]; ok {
			os[i].Items = append(os[i].Items, it)
		}
	}
	return rows.Err()
}
