package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/refurbly/listing-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// schemaStatements is executed one statement at a time; pgx's extended
// protocol does not accept multi-statement strings.
// listing_attempts carries no foreign key on item_id so the audit trail
// survives item deletion.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		brand TEXT NOT NULL,
		model TEXT NOT NULL,
		storage TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		condition_grade TEXT NOT NULL,
		base_net NUMERIC NOT NULL,
		cost_price NUMERIC NOT NULL DEFAULT 0,
		stock_qty INTEGER NOT NULL DEFAULT 0,
		discontinued BOOLEAN NOT NULL DEFAULT FALSE,
		tags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS item_prices (
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		marketplace TEXT NOT NULL,
		price NUMERIC NOT NULL,
		overridden BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (item_id, marketplace)
	)`,
	`CREATE TABLE IF NOT EXISTS listing_attempts (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason_code TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		condition_label TEXT NOT NULL DEFAULT '',
		final_price NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listing_attempts_item ON listing_attempts (item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_listing_attempts_marketplace ON listing_attempts (marketplace)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, item *model.Item) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items (id, brand, model, storage, color, condition_grade,
		                    base_net, cost_price, stock_qty, discontinued, tags,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10, $11, $12, $13)`,
		item.ID, item.Brand, item.Model, item.Storage, item.Color, string(item.Condition),
		item.BaseNet.String(), item.CostPrice.String(), item.StockQty, item.Discontinued, item.Tags,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return s.replacePrices(ctx, item.ID, item.ListPrices, item.PriceOverridden)
}

const itemColumns = `id, brand, model, storage, color, condition_grade,
       base_net::TEXT, cost_price::TEXT, stock_qty, discontinued, tags,
       created_at, updated_at`

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: item %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}

	if err := s.attachPrices(ctx, []*model.Item{item}); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, filter ListFilter) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	var conds []string
	var args []any

	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		conds = append(conds, fmt.Sprintf("(brand ILIKE $%d OR model ILIKE $%d)", len(args), len(args)))
	}
	if filter.Condition != "" {
		args = append(args, string(filter.Condition))
		conds = append(conds, fmt.Sprintf("condition_grade = $%d", len(args)))
	}
	if filter.Marketplace != "" {
		args = append(args, string(filter.Marketplace))
		conds = append(conds, fmt.Sprintf(
			`NOT discontinued AND stock_qty > 0 AND EXISTS (
			   SELECT 1 FROM item_prices p
			   WHERE p.item_id = items.id AND p.marketplace = $%d AND p.price > 0)`, len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Take element pointers only after the slice has stopped growing.
	refs := make([]*model.Item, len(items))
	for i := range items {
		refs[i] = &items[i]
	}
	if err := s.attachPrices(ctx, refs); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, item *model.Item) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE items
		 SET brand = $2, model = $3, storage = $4, color = $5, condition_grade = $6,
		     base_net = $7::NUMERIC, cost_price = $8::NUMERIC, stock_qty = $9,
		     discontinued = $10, tags = $11, updated_at = $12
		 WHERE id = $1`,
		item.ID, item.Brand, item.Model, item.Storage, item.Color, string(item.Condition),
		item.BaseNet.String(), item.CostPrice.String(), item.StockQty,
		item.Discontinued, item.Tags, item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %s", ErrNotFound, item.ID)
	}
	return s.replacePrices(ctx, item.ID, item.ListPrices, item.PriceOverridden)
}

func (s *PostgresStore) UpdateItemPrices(ctx context.Context, id string, prices map[model.Marketplace]decimal.Decimal, overridden map[model.Marketplace]bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE items SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	return s.replacePrices(ctx, id, prices, overridden)
}

func (s *PostgresStore) DeleteItem(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) InsertListingAttempt(ctx context.Context, a *model.ListingAttempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listing_attempts (id, item_id, marketplace, outcome, reason_code,
		                               message, condition_label, final_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9)`,
		a.ID, a.ItemID, string(a.Marketplace), a.Outcome, a.ReasonCode,
		a.Message, a.ConditionLabel, a.FinalPrice.String(), a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListingAttemptsByItem(ctx context.Context, itemID string) ([]model.ListingAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, item_id, marketplace, outcome, reason_code,
		        message, condition_label, final_price::TEXT, created_at
		 FROM listing_attempts WHERE item_id = $1 ORDER BY created_at`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanListingAttempts(rows)
}

func (s *PostgresStore) ListingAttemptsByMarketplace(ctx context.Context, m model.Marketplace) ([]model.ListingAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, item_id, marketplace, outcome, reason_code,
		        message, condition_label, final_price::TEXT, created_at
		 FROM listing_attempts WHERE marketplace = $1 ORDER BY created_at`, string(m))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanListingAttempts(rows)
}

// replacePrices swaps the stored price rows for an item with the given maps.
func (s *PostgresStore) replacePrices(ctx context.Context, id string, prices map[model.Marketplace]decimal.Decimal, overridden map[model.Marketplace]bool) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM item_prices WHERE item_id = $1`, id); err != nil {
		return err
	}
	for m, p := range prices {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO item_prices (item_id, marketplace, price, overridden)
			 VALUES ($1, $2, $3::NUMERIC, $4)
			 ON CONFLICT (item_id, marketplace)
			 DO UPDATE SET price = EXCLUDED.price, overridden = EXCLUDED.overridden`,
			id, string(m), p.String(), overridden[m],
		); err != nil {
			return err
		}
	}
	return nil
}

// attachPrices loads the item_prices rows for the given items in one query.
func (s *PostgresStore) attachPrices(ctx context.Context, items []*model.Item) error {
	for _, item := range items {
		item.ListPrices = make(map[model.Marketplace]decimal.Decimal)
		item.PriceOverridden = make(map[model.Marketplace]bool)
	}
	if len(items) == 0 {
		return nil
	}

	byID := make(map[string]*model.Item, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		byID[item.ID] = item
		ids = append(ids, item.ID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT item_id, marketplace, price::TEXT, overridden
		 FROM item_prices WHERE item_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, marketplace, priceS string
		var over bool
		if err := rows.Scan(&itemID, &marketplace, &priceS, &over); err != nil {
			return err
		}
		item, ok := byID[itemID]
		if !ok {
			continue
		}
		price, _ := decimal.NewFromString(priceS)
		item.ListPrices[model.Marketplace(marketplace)] = price
		item.PriceOverridden[model.Marketplace(marketplace)] = over
	}
	return rows.Err()
}

// scanItem reads one items row. Decimals travel as TEXT and are parsed back,
// never as float64.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanItem(row pgxRow) (*model.Item, error) {
	var item model.Item
	var condition, baseNet, costPrice string

	if err := row.Scan(&item.ID, &item.Brand, &item.Model, &item.Storage, &item.Color,
		&condition, &baseNet, &costPrice, &item.StockQty, &item.Discontinued,
		&item.Tags, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}

	item.Condition = model.Grade(condition)
	item.BaseNet, _ = decimal.NewFromString(baseNet)
	item.CostPrice, _ = decimal.NewFromString(costPrice)
	return &item, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanListingAttempts(rows pgxRows) ([]model.ListingAttempt, error) {
	var attempts []model.ListingAttempt
	for rows.Next() {
		var a model.ListingAttempt
		var marketplace, finalPrice string

		if err := rows.Scan(&a.ID, &a.ItemID, &marketplace, &a.Outcome, &a.ReasonCode,
			&a.Message, &a.ConditionLabel, &finalPrice, &a.CreatedAt); err != nil {
			return nil, err
		}

		a.Marketplace = model.Marketplace(marketplace)
		a.FinalPrice, _ = decimal.NewFromString(finalPrice)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
