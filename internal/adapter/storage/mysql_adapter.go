package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

// MySQL error numbers that mean "another writer got there first".
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
)

const orderStatusFulfilled = "fulfilled"

//go:embed schema.sql
var schemaSQL string

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

var (
	_ port.LedgerRepository = (*MySQLAdapter)(nil)
	_ port.OrderReader      = (*MySQLAdapter)(nil)
	_ port.CatalogReader    = (*MySQLAdapter)(nil)
)

// Migrate applies the embedded schema. Statements are idempotent.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// mapError turns lock contention into a retryable conflict.
func mapError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockWaitTimeout, errDeadlock, errDuplicateEntry:
			return fmt.Errorf("%w: %s", domain.ErrConcurrencyConflict, myErr.Message)
		}
	}
	return err
}

func (m *MySQLAdapter) WithTransaction(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}

const recordColumns = `tenant_id, sku_id, location, on_hand, allocated, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := row.Scan(&rec.TenantID, &rec.SkuID, &rec.Location, &rec.OnHand, &rec.Allocated, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *MySQLAdapter) GetRecord(ctx context.Context, key domain.RecordKey) (*domain.InventoryRecord, error) {
	rec, err := scanRecord(m.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM inventory_records WHERE tenant_id = ? AND sku_id = ? AND location = ?`,
		key.TenantID, key.SkuID, key.Location,
	))
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}
	return rec, nil
}

func (m *MySQLAdapter) ListRecords(ctx context.Context, tenantID, location string) ([]domain.InventoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM inventory_records WHERE tenant_id = ?`
	args := []any{tenantID}
	if location != "" {
		query += ` AND location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY sku_id, location`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []domain.InventoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) ListEvents(ctx context.Context, key domain.RecordKey, limit int) ([]domain.AdjustmentEvent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, tenant_id, sku_id, location, bucket, quantity_delta, reason_code,
		       COALESCE(order_id, ''), COALESCE(acting_user_id, ''), created_at
		FROM inventory_events
		WHERE tenant_id = ? AND sku_id = ? AND location = ?
		ORDER BY seq DESC
		LIMIT ?`,
		key.TenantID, key.SkuID, key.Location, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.AdjustmentEvent
	for rows.Next() {
		var ev domain.AdjustmentEvent
		var reason string
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.SkuID, &ev.Location, &ev.Bucket, &ev.QuantityDelta,
			&reason, &ev.OrderID, &ev.ActingUserID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.ReasonCode, err = domain.ParseReasonCode(reason); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) OrderLines(ctx context.Context, tenantID, orderID string) ([]domain.OrderLine, error) {
	var id string
	err := m.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE tenant_id = ? AND id = ?`, tenantID, orderID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("order %s not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT sku_id, quantity FROM order_lines
		WHERE tenant_id = ? AND order_id = ?
		ORDER BY sku_id`, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.SkuID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (m *MySQLAdapter) FulfilledSales(ctx context.Context, tenantID, location string, since, until time.Time) ([]domain.SalesSample, error) {
	query := `
		SELECT ol.sku_id, ol.order_id, ol.quantity, o.fulfilled_at
		FROM order_lines ol
		JOIN orders o ON o.tenant_id = ol.tenant_id AND o.id = ol.order_id
		WHERE o.tenant_id = ? AND o.status = ? AND o.fulfilled_at >= ? AND o.fulfilled_at < ?`
	args := []any{tenantID, orderStatusFulfilled, since, until}
	if location != "" {
		query += ` AND o.location = ?`
		args = append(args, location)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var out []domain.SalesSample
	for rows.Next() {
		var s domain.SalesSample
		if err := rows.Scan(&s.SkuID, &s.OrderID, &s.Quantity, &s.FulfilledAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) ActiveProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT sku_id, name, category, brand FROM products
		WHERE tenant_id = ? AND active = 1
		ORDER BY sku_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SkuID, &p.Name, &p.Category, &p.Brand); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type mysqlTx struct {
	tx *sql.Tx
}

// GetForUpdate takes a row lock held until commit or rollback.
func (t *mysqlTx) GetForUpdate(ctx context.Context, key domain.RecordKey) (*domain.InventoryRecord, error) {
	rec, err := scanRecord(t.tx.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM inventory_records WHERE tenant_id = ? AND sku_id = ? AND location = ?
		FOR UPDATE`,
		key.TenantID, key.SkuID, key.Location,
	))
	if err != nil {
		return nil, fmt.Errorf("lock record: %w", mapError(err))
	}
	return rec, nil
}

func (t *mysqlTx) Insert(ctx context.Context, rec domain.InventoryRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		rec.TenantID, rec.SkuID, rec.Location, rec.OnHand, rec.Allocated, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", mapError(err))
	}
	return nil
}

func (t *mysqlTx) Update(ctx context.Context, rec domain.InventoryRecord) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE inventory_records
		SET on_hand = ?, allocated = ?, version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND sku_id = ? AND location = ? AND version = ?`,
		rec.OnHand, rec.Allocated, rec.UpdatedAt,
		rec.TenantID, rec.SkuID, rec.Location, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", mapError(err))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.NewConcurrencyConflict("stale record version")
	}
	return nil
}

func (t *mysqlTx) AppendEvent(ctx context.Context, ev domain.AdjustmentEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory_events
			(id, tenant_id, sku_id, location, bucket, quantity_delta, reason_code, order_id, acting_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)`,
		ev.ID, ev.TenantID, ev.SkuID, ev.Location, ev.Bucket, ev.QuantityDelta, ev.ReasonCode.String(),
		ev.OrderID, ev.ActingUserID, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", mapError(err))
	}
	return nil
}
