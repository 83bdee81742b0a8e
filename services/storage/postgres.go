package storage

import (
	"context"
	"database/sql"
	stderrors "errors"

	"sjsage522/farewatch/internal/fare"
	"sjsage522/farewatch/logger"
	"sjsage522/farewatch/pkg/errors"

	_ "github.com/lib/pq"
)

// PostgresStore implements QuoteStore on PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgresStore connects to dsn and makes sure the schema exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.NewStorage("", "failed to open database", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewStorage("", "failed to ping database", err)
	}

	s := &PostgresStore{db: db, log: logger.ForStorage()}
	if err := s.CreateTable(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Info().Msg("Connected to quote database")
	return s, nil
}

// CreateTable creates the quote table and its lookup index
func (s *PostgresStore) CreateTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS fare_quotes (
		id SERIAL PRIMARY KEY,
		route VARCHAR(64) NOT NULL,
		origin VARCHAR(8) NOT NULL,
		destination VARCHAR(8) NOT NULL,
		departure_date VARCHAR(10) NOT NULL,
		return_date VARCHAR(10),
		url TEXT NOT NULL,
		price INTEGER,
		status VARCHAR(20) NOT NULL,
		error TEXT,
		fetched_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fare_quotes_route_fetched ON fare_quotes(route, fetched_at DESC);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.NewStorage("", "failed to create table", err)
	}
	return nil
}

// SaveQuote inserts q
func (s *PostgresStore) SaveQuote(ctx context.Context, q fare.Quote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fare_quotes
			(route, origin, destination, departure_date, return_date, url, price, status, error, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		q.Route,
		q.Origin,
		q.Destination,
		q.DepartureDate,
		nullString(q.ReturnDate),
		q.URL,
		nullInt(q.Price),
		q.Status,
		nullString(q.Error),
		q.FetchedAt,
	)
	if err != nil {
		return errors.NewStorage(q.Route, "failed to insert quote", err)
	}
	return nil
}

// LastPricedQuote returns the most recent quote for route that carries a price, or ErrNoQuote
func (s *PostgresStore) LastPricedQuote(ctx context.Context, route string) (*fare.Quote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT route, origin, destination, departure_date, return_date, url, price, status, error, fetched_at
		FROM fare_quotes
		WHERE route = $1 AND price IS NOT NULL
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1`, route)

	var (
		q          fare.Quote
		returnDate sql.NullString
		price      sql.NullInt64
		errText    sql.NullString
	)
	err := row.Scan(
		&q.Route,
		&q.Origin,
		&q.Destination,
		&q.DepartureDate,
		&returnDate,
		&q.URL,
		&price,
		&q.Status,
		&errText,
		&q.FetchedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoQuote
	}
	if err != nil {
		return nil, errors.NewStorage(route, "failed to read quote", err)
	}

	q.ReturnDate = returnDate.String
	q.Error = errText.String
	if price.Valid {
		p := int(price.Int64)
		q.Price = &p
	}
	q.FetchedAt = q.FetchedAt.UTC()
	return &q, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
