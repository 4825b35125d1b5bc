// Package storage persists raw venue rows in postgres and serves the
// windowed row-fetch queries of the aggregation engine.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coinpulse/logger"
	"coinpulse/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
	name      TEXT             NOT NULL,
	high      DOUBLE PRECISION NOT NULL,
	low       DOUBLE PRECISION NOT NULL,
	last      DOUBLE PRECISION NOT NULL,
	buy       DOUBLE PRECISION NOT NULL,
	sell      DOUBLE PRECISION NOT NULL,
	amount    DOUBLE PRECISION NOT NULL,
	volume    DOUBLE PRECISION NOT NULL,
	timestamp BIGINT           NOT NULL
);
CREATE INDEX IF NOT EXISTS ticks_name_ts_idx ON ticks (name, timestamp);

CREATE TABLE IF NOT EXISTS orders (
	name      TEXT             NOT NULL,
	price     DOUBLE PRECISION NOT NULL,
	amount    DOUBLE PRECISION NOT NULL,
	type      TEXT             NOT NULL,
	timestamp BIGINT           NOT NULL,
	UNIQUE (name, price, amount, type, timestamp)
);
CREATE INDEX IF NOT EXISTS orders_name_ts_idx ON orders (name, timestamp);
`

// Postgres implements the engine's OrderStore on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  *logger.Log
}

func New(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool, log: logger.GetLogger()}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	p.log.WithComponent("storage").Info("postgres store initialized")
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// InsertTicks stores one polling cycle's ticker snapshot.
func (p *Postgres) InsertTicks(ctx context.Context, set models.TickerSet) error {
	batch := &pgx.Batch{}
	for _, row := range set {
		batch.Queue(
			`INSERT INTO ticks (name, high, low, last, buy, sell, amount, volume, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			row.Name, row.High, row.Low, row.Last, row.Buy, row.Sell, row.Amount, row.Volume, row.Timestamp,
		)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert ticks: %w", err)
	}
	return nil
}

// InsertOrders stores one polling cycle's order rows. Rows already seen in
// a previous cycle are skipped.
func (p *Postgres) InsertOrders(ctx context.Context, rows []models.OrderRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(
			`INSERT INTO orders (name, price, amount, type, timestamp)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT DO NOTHING`,
			row.Name, row.Price, row.Amount, row.Type, row.Timestamp,
		)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert orders: %w", err)
	}
	return nil
}

// OrdersWithin returns the coin's rows inside (start, end), ascending by
// timestamp.
func (p *Postgres) OrdersWithin(ctx context.Context, coin string, start, end int64) ([]models.OrderRow, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT name, price, amount, type, timestamp FROM orders
		 WHERE name = $1 AND timestamp > $2 AND timestamp < $3
		 ORDER BY timestamp ASC`,
		coin, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return scanOrderRows(rows)
}

// OrdersGroupedByPrice returns the coin's rows inside (start, end) grouped
// by (price, type) with summed amounts, descending by price.
func (p *Postgres) OrdersGroupedByPrice(ctx context.Context, coin string, start, end int64) ([]models.PriceLevelRow, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT name, price, SUM(amount) AS amount, COUNT(1) AS count, type FROM orders
		 WHERE name = $1 AND timestamp > $2 AND timestamp < $3
		 GROUP BY name, price, type
		 ORDER BY price DESC`,
		coin, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query grouped orders: %w", err)
	}
	defer rows.Close()

	var result []models.PriceLevelRow
	for rows.Next() {
		var row models.PriceLevelRow
		if err := rows.Scan(&row.Name, &row.Price, &row.Amount, &row.Count, &row.Type); err != nil {
			return nil, fmt.Errorf("scan grouped order row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// CountOrders returns the number of the coin's rows inside (start, end).
func (p *Postgres) CountOrders(ctx context.Context, coin string, start, end int64) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM orders
		 WHERE name = $1 AND timestamp > $2 AND timestamp < $3`,
		coin, start, end,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// TopOrdersByAmount returns the coin's limit biggest rows inside
// (start, end), descending by amount.
func (p *Postgres) TopOrdersByAmount(ctx context.Context, coin string, start, end int64, limit int64) ([]models.OrderRow, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT name, price, amount, type, timestamp FROM orders
		 WHERE name = $1 AND timestamp > $2 AND timestamp < $3
		 ORDER BY amount DESC
		 LIMIT $4`,
		coin, start, end, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top orders: %w", err)
	}
	return scanOrderRows(rows)
}

func scanOrderRows(rows pgx.Rows) ([]models.OrderRow, error) {
	defer rows.Close()

	var result []models.OrderRow
	for rows.Next() {
		var row models.OrderRow
		if err := rows.Scan(&row.Name, &row.Price, &row.Amount, &row.Type, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
