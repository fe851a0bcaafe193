package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/offer-configurator/pkg/models"
)

func newMockGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	g := New(db, logger)
	g.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return g, mock
}

func resolvedConfiguration() models.Configuration {
	total := 20730.0
	return models.Configuration{
		VehicleID:      "van-s",
		VehicleName:    "City Van S",
		ColorCode:      "BLK",
		ColorName:      "Midnight Black",
		UpholsteryCode: "FAB-G",
		UpholsteryName: "Fabric Grey",
		FactoryOptions: []string{"NAV-PRO", "UNKNOWN-X"},
		Customer: models.Customer{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
		},
		TotalPrice: &total,
	}
}

func TestInsert(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectExec("INSERT INTO configuration").
		WithArgs(
			sqlmock.AnyArg(), "van-s", "City Van S", "BLK", "Midnight Black",
			"FAB-G", "Fabric Grey", sqlmock.AnyArg(), sqlmock.AnyArg(),
			nil, sqlmock.AnyArg(), 20730.0, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := g.Insert(context.Background(), resolvedConfiguration())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("Expected a UUID offer id, got %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestInsertPropagatesErrors(t *testing.T) {
	g, mock := newMockGateway(t)
	refused := errors.New("connection refused")

	mock.ExpectExec("INSERT INTO configuration").WillReturnError(refused)

	id, err := g.Insert(context.Background(), resolvedConfiguration())
	if !errors.Is(err, refused) {
		t.Errorf("Expected connection error, got %v", err)
	}
	if id != "" {
		t.Errorf("Expected no id on failure, got %q", id)
	}
}

func TestEnsureSchema(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS configuration").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_configuration_created_at").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_configuration_customer_email").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := g.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestCollections(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("configuration").AddRow("schema_migrations"))

	names, err := g.Collections(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "configuration" {
		t.Errorf("Unexpected collections: %v", names)
	}
}

func TestWaitForConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	g := New(db, logger)

	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing()

	if err := g.WaitForConnection(context.Background(), 3, time.Millisecond); err != nil {
		t.Fatalf("Expected second ping to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestIsUnavailable(t *testing.T) {
	if IsUnavailable(nil) {
		t.Error("nil is not an outage")
	}
	if IsUnavailable(context.Canceled) {
		t.Error("Cancelled requests are not an outage")
	}
	if !IsUnavailable(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")) {
		t.Error("Connection errors must count as an outage")
	}
	if !IsUnavailable(context.DeadlineExceeded) {
		t.Error("Timeouts must count as an outage")
	}

	// 22021 is character_not_in_repertoire, returned for NUL bytes in text.
	nul := &pq.Error{Code: "22021", Message: `invalid byte sequence for encoding "UTF8": 0x00`}
	if IsUnavailable(nul) {
		t.Error("Data exceptions are row problems, not an outage")
	}
	if IsUnavailable(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})) {
		t.Error("Wrapped integrity violations are row problems, not an outage")
	}
	if !IsUnavailable(&pq.Error{Code: "57P01"}) {
		t.Error("admin_shutdown must count as an outage")
	}
}

func TestSchemaKeepsTotalUnrounded(t *testing.T) {
	if !strings.Contains(schema[0], "total_price NUMERIC NOT NULL") {
		t.Errorf("Expected unscaled NUMERIC total_price column, got:\n%s", schema[0])
	}
}
