package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/offer-configurator/pkg/models"
)

// Table holds one row per submitted offer.
const Table = "configuration"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS configuration (
		offer_id UUID PRIMARY KEY,
		vehicle_id VARCHAR(64) NOT NULL,
		vehicle_name VARCHAR(255) NOT NULL,
		color_code VARCHAR(64) NOT NULL,
		color_name VARCHAR(255) NOT NULL,
		upholstery_code VARCHAR(64) NOT NULL,
		upholstery_name VARCHAR(255) NOT NULL,
		factory_options TEXT[] NOT NULL DEFAULT '{}',
		accessories TEXT[] NOT NULL DEFAULT '{}',
		special_agreement TEXT,
		customer JSONB NOT NULL,
		total_price NUMERIC NOT NULL CHECK (total_price >= 0),
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_configuration_created_at ON configuration(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_configuration_customer_email ON configuration((customer->>'email'))`,
}

const insertOffer = `
	INSERT INTO configuration (
		offer_id, vehicle_id, vehicle_name, color_code, color_name,
		upholstery_code, upholstery_name, factory_options, accessories,
		special_agreement, customer, total_price, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

type Gateway struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
}

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func New(db *sql.DB, logger *logrus.Logger) *Gateway {
	return &Gateway{db: db, logger: logger, now: time.Now}
}

// WaitForConnection pings until the database answers or attempts run out.
func (g *Gateway) WaitForConnection(ctx context.Context, attempts int, interval time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = g.db.PingContext(ctx); err == nil {
			g.logger.Info("Database connection established")
			return nil
		}
		g.logger.WithField("attempt", i+1).Info("Waiting for database...")
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("database not reachable after %d attempts: %w", attempts, err)
}

func (g *Gateway) EnsureSchema(ctx context.Context) error {
	for _, query := range schema {
		if _, err := g.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (g *Gateway) Insert(ctx context.Context, cfg models.Configuration) (string, error) {
	customer, err := json.Marshal(cfg.Customer)
	if err != nil {
		return "", fmt.Errorf("encode customer: %w", err)
	}

	var total float64
	if cfg.TotalPrice != nil {
		total = *cfg.TotalPrice
	}

	id := uuid.New().String()
	_, err = g.db.ExecContext(ctx, insertOffer,
		id, cfg.VehicleID, cfg.VehicleName, cfg.ColorCode, cfg.ColorName,
		cfg.UpholsteryCode, cfg.UpholsteryName,
		pq.Array(nonNil(cfg.FactoryOptions)), pq.Array(nonNil(cfg.Accessories)),
		cfg.SpecialAgreement, string(customer), total, g.now().UTC(),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			g.logger.WithFields(logrus.Fields{
				"code":       string(pqErr.Code),
				"constraint": pqErr.Constraint,
			}).Error("Postgres rejected offer insert")
		}
		return "", err
	}
	return id, nil
}

func (g *Gateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *Gateway) Collections(ctx context.Context) ([]string, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (g *Gateway) Close() error {
	return g.db.Close()
}

// IsUnavailable reports whether err says the database could not be reached or
// did not answer, as opposed to rejecting this particular row. Data exceptions
// (class 22) and integrity violations (class 23) are row problems.
func IsUnavailable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return false
		}
	}
	return true
}

func nonNil(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}
