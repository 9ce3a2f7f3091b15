package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const saleColumns = `id, sale_number, sale_date, customer, branch, total_amount,
	is_cancelled, cancelled_at, cancellation_reason, version, created_at, updated_at`

// orderColumns сопоставляет ключи сортировки с колонками таблицы sales.
var orderColumns = map[string]string{
	domain.OrderByDate:        "sale_date",
	domain.OrderBySaleNumber:  "sale_number",
	domain.OrderByCustomer:    "customer",
	domain.OrderByBranch:      "branch",
	domain.OrderByTotalAmount: "total_amount",
	domain.OrderByCreatedAt:   "created_at",
}

type saleRepository struct {
	db    *sql.DB
	clock domain.Clock
}

// NewSaleRepository создаёт PostgreSQL-реализацию SaleRepository.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepository{db: store.DB(), clock: domain.SystemClock{}}
}

func (r *saleRepository) Create(ctx context.Context, sale domain.Sale) (created domain.Sale, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	now := r.clock.Now()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	if sale.UpdatedAt.IsZero() {
		sale.UpdatedAt = sale.CreatedAt
	}
	sale.Version = 1

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		sale.ID, sale.SaleNumber, sale.Date, sale.Customer, sale.Branch, sale.TotalAmount,
		sale.IsCancelled, sale.CancelledAt, sale.CancellationReason, sale.Version,
		sale.CreatedAt, sale.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrSaleAlreadyExists
			return domain.Sale{}, err
		}
		return domain.Sale{}, fmt.Errorf("insert sale: %w", err)
	}

	if err = insertItems(ctx, tx, &sale); err != nil {
		return domain.Sale{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Sale{}, fmt.Errorf("commit create sale: %w", err)
	}

	return sale, nil
}

func (r *saleRepository) Get(ctx context.Context, id string) (domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	sale, err := scanSale(r.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, domain.SaleNotFound(id)
		}
		return domain.Sale{}, fmt.Errorf("select sale: %w", err)
	}

	items, err := r.loadItems(ctx, sale.ID)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Items = items

	return sale, nil
}

func (r *saleRepository) Update(ctx context.Context, sale domain.Sale) (updated domain.Sale, err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
		UPDATE sales
		SET sale_number = $1,
		    sale_date = $2,
		    customer = $3,
		    branch = $4,
		    total_amount = $5,
		    is_cancelled = $6,
		    cancelled_at = $7,
		    cancellation_reason = $8,
		    version = version + 1,
		    updated_at = $9
		WHERE id = $10
		  AND version = $11
		RETURNING created_at
	`,
		sale.SaleNumber,
		sale.Date,
		sale.Customer,
		sale.Branch,
		sale.TotalAmount,
		sale.IsCancelled,
		sale.CancelledAt,
		sale.CancellationReason,
		sale.UpdatedAt,
		sale.ID,
		sale.Version,
	).Scan(&createdAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, fmt.Errorf("update sale: %w", err)
		}
		exists, existsErr := saleExistsTx(ctx, tx, sale.ID)
		if existsErr != nil {
			err = existsErr
			return domain.Sale{}, err
		}
		if !exists {
			err = domain.SaleNotFound(sale.ID)
			return domain.Sale{}, err
		}
		err = domain.ErrSaleVersionConflict
		return domain.Sale{}, err
	}

	// Набор позиций заменяется целиком.
	if _, err = tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return domain.Sale{}, fmt.Errorf("delete sale items: %w", err)
	}
	if err = insertItems(ctx, tx, &sale); err != nil {
		return domain.Sale{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Sale{}, fmt.Errorf("commit update sale: %w", err)
	}

	sale.CreatedAt = createdAt
	sale.Version++
	return sale, nil
}

func (r *saleRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// sale_items удаляются каскадно.
	res, err := r.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete sale: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *saleRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Sale, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	where, args := buildListWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}
	if total == 0 {
		return []domain.Sale{}, 0, nil
	}

	direction := "ASC"
	if !filter.Ascending {
		direction = "DESC"
	}
	query := `SELECT ` + saleColumns + ` FROM sales` + where +
		` ORDER BY ` + orderColumns[filter.NormalizedOrderBy()] + ` ` + direction + `, id ` + direction

	if filter.PageSize > 0 {
		args = append(args, filter.PageSize, filter.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan sale row: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sale rows: %w", err)
	}
	rows.Close()

	for i := range sales {
		items, err := r.loadItems(ctx, sales[i].ID)
		if err != nil {
			return nil, 0, err
		}
		sales[i].Items = items
	}

	return sales, total, nil
}

// buildListWhere собирает WHERE и аргументы для фильтра списка.
func buildListWhere(filter domain.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		p := next("%" + term + "%")
		conds = append(conds, "(sale_number ILIKE "+p+" OR customer ILIKE "+p+" OR branch ILIKE "+p+")")
	}
	if filter.StartDate != nil {
		conds = append(conds, "sale_date >= "+next(*filter.StartDate))
	}
	if filter.EndDate != nil {
		conds = append(conds, "sale_date <= "+next(*filter.EndDate))
	}
	if filter.IsCancelled != nil {
		conds = append(conds, "is_cancelled = "+next(*filter.IsCancelled))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale        domain.Sale
		cancelledAt sql.NullTime
	)
	if err := row.Scan(
		&sale.ID, &sale.SaleNumber, &sale.Date, &sale.Customer, &sale.Branch, &sale.TotalAmount,
		&sale.IsCancelled, &cancelledAt, &sale.CancellationReason, &sale.Version,
		&sale.CreatedAt, &sale.UpdatedAt,
	); err != nil {
		return domain.Sale{}, err
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		sale.CancelledAt = &at
	}
	sale.Date = sale.Date.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

func insertItems(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error {
	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.SaleID = sale.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, position, product_id, product_name, quantity,
				unit_price, discount, total_amount, is_cancelled
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			item.ID, sale.ID, i, item.ProductID, item.ProductName, item.Quantity,
			item.UnitPrice, item.Discount, item.TotalAmount, item.IsCancelled,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert item %s of sale %s: %w", item.ID, sale.ID, domain.ErrItemIDTaken)
			}
			return fmt.Errorf("insert sale item: %w", err)
		}
	}
	return nil
}

func (r *saleRepository) loadItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price, discount, total_amount, is_cancelled
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY position ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("load sale items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(
			&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Quantity,
			&item.UnitPrice, &item.Discount, &item.TotalAmount, &item.IsCancelled,
		); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}

	return items, nil
}

func saleExistsTx(ctx context.Context, tx *sql.Tx, saleID string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM sales WHERE id = $1`, saleID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check sale exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.SaleRepository = (*saleRepository)(nil)
