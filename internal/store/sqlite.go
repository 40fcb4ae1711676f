// Package store persists farm data and turn traces in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kisansathi/orchestrator/internal/domain"
)

// SQLiteStore implements persistence on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database, runs migrations and seeds demo farm
// data if the tables are empty.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS scheme_master (
			scheme_id TEXT PRIMARY KEY,
			scheme_name TEXT NOT NULL,
			description TEXT,
			deadline DATETIME,
			region TEXT,
			crop TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS applied_schemes (
			reference_id TEXT PRIMARY KEY,
			scheme_id TEXT NOT NULL,
			farmer_id TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (scheme_id) REFERENCES scheme_master(scheme_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_applied_farmer ON applied_schemes(farmer_id, applied_at)`,
		`CREATE TABLE IF NOT EXISTS stock_items (
			farmer_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			quantity REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (farmer_id, item_name)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_logs (
			id TEXT PRIMARY KEY,
			farmer_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			used REAL NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_logs_farmer ON stock_logs(farmer_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			farmer_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			quantity REAL NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_farmer ON orders(farmer_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS turn_events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turn_events_session ON turn_events(session_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *SQLiteStore) seed() error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM scheme_master`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		schemes := []domain.Scheme{
			{SchemeID: "PMKISAN", SchemeName: "PM-Kisan Samman Nidhi", Description: "Income support of 6000 per year for landholding farmers.", Region: "all", Crop: "all"},
			{SchemeID: "PMFBY", SchemeName: "Pradhan Mantri Fasal Bima Yojana", Description: "Crop insurance against yield loss from natural calamities.", Region: "all", Crop: "wheat"},
			{SchemeID: "KCC", SchemeName: "Kisan Credit Card", Description: "Short term credit for cultivation and allied activities.", Region: "punjab", Crop: "all"},
			{SchemeID: "PKVY", SchemeName: "Paramparagat Krishi Vikas Yojana", Description: "Support for organic farming clusters.", Region: "maharashtra", Crop: "tomato"},
		}
		for _, sc := range schemes {
			if _, err := s.db.Exec(
				`INSERT INTO scheme_master (scheme_id, scheme_name, description, region, crop) VALUES (?, ?, ?, ?, ?)`,
				sc.SchemeID, sc.SchemeName, sc.Description, sc.Region, sc.Crop); err != nil {
				return err
			}
		}
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM stock_items`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		stock := []domain.StockItem{
			{FarmerID: "F001", ItemName: "wheat", Quantity: 5},
			{FarmerID: "F001", ItemName: "tomato", Quantity: 2},
		}
		for _, it := range stock {
			if _, err := s.db.Exec(
				`INSERT INTO stock_items (farmer_id, item_name, quantity) VALUES (?, ?, ?)`,
				it.FarmerID, it.ItemName, it.Quantity); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListSchemes returns schemes matching the optional region and crop
// filters. Matching is case-insensitive; a scheme registered for "all"
// matches any filter value.
func (s *SQLiteStore) ListSchemes(ctx context.Context, region, crop string) ([]domain.Scheme, error) {
	query := `SELECT scheme_id, scheme_name, description, deadline, region, crop, created_at FROM scheme_master WHERE 1=1`
	args := []interface{}{}
	if region != "" {
		query += ` AND (LOWER(region) = LOWER(?) OR region = 'all')`
		args = append(args, region)
	}
	if crop != "" {
		query += ` AND (LOWER(crop) = LOWER(?) OR crop = 'all')`
		args = append(args, crop)
	}
	query += ` ORDER BY scheme_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemes []domain.Scheme
	for rows.Next() {
		var sc domain.Scheme
		var desc, region, crop sql.NullString
		var deadline sql.NullTime
		if err := rows.Scan(&sc.SchemeID, &sc.SchemeName, &desc, &deadline, &region, &crop, &sc.CreatedAt); err != nil {
			return nil, err
		}
		sc.Description = desc.String
		sc.Region = region.String
		sc.Crop = crop.String
		if deadline.Valid {
			sc.Deadline = &deadline.Time
		}
		schemes = append(schemes, sc)
	}
	return schemes, rows.Err()
}

// GetScheme returns one scheme, or nil if it does not exist.
func (s *SQLiteStore) GetScheme(ctx context.Context, schemeID string) (*domain.Scheme, error) {
	var sc domain.Scheme
	var desc, region, crop sql.NullString
	var deadline sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT scheme_id, scheme_name, description, deadline, region, crop, created_at FROM scheme_master WHERE scheme_id = ?`,
		schemeID).Scan(&sc.SchemeID, &sc.SchemeName, &desc, &deadline, &region, &crop, &sc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sc.Description = desc.String
	sc.Region = region.String
	sc.Crop = crop.String
	if deadline.Valid {
		sc.Deadline = &deadline.Time
	}
	return &sc, nil
}

// CreateApplication records a scheme application.
func (s *SQLiteStore) CreateApplication(ctx context.Context, app *domain.AppliedScheme) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applied_schemes (reference_id, scheme_id, farmer_id, applied_at) VALUES (?, ?, ?, ?)`,
		app.ReferenceID, app.SchemeID, app.FarmerID, app.AppliedAt)
	return err
}

// ListApplications returns a farmer's scheme applications, oldest first.
func (s *SQLiteStore) ListApplications(ctx context.Context, farmerID string) ([]domain.AppliedScheme, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reference_id, scheme_id, farmer_id, applied_at FROM applied_schemes WHERE farmer_id = ? ORDER BY applied_at ASC`,
		farmerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.AppliedScheme
	for rows.Next() {
		var a domain.AppliedScheme
		if err := rows.Scan(&a.ReferenceID, &a.SchemeID, &a.FarmerID, &a.AppliedAt); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

// ListStock returns a farmer's current stock items.
func (s *SQLiteStore) ListStock(ctx context.Context, farmerID string) ([]domain.StockItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT farmer_id, item_name, quantity FROM stock_items WHERE farmer_id = ? ORDER BY item_name`,
		farmerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.StockItem
	for rows.Next() {
		var it domain.StockItem
		if err := rows.Scan(&it.FarmerID, &it.ItemName, &it.Quantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// RecordStockUse decrements a stock item and appends a usage log entry.
// The quantity never goes below zero.
func (s *SQLiteStore) RecordStockUse(ctx context.Context, log *domain.StockLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE stock_items SET quantity = MAX(quantity - ?, 0) WHERE farmer_id = ? AND item_name = ?`,
		log.Used, log.FarmerID, log.ItemName); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stock_logs (id, farmer_id, item_name, used, timestamp) VALUES (?, ?, ?, ?, ?)`,
		log.ID, log.FarmerID, log.ItemName, log.Used, log.Timestamp); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateOrder records a reorder for a farmer.
func (s *SQLiteStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, farmer_id, item_name, quantity, timestamp) VALUES (?, ?, ?, ?, ?)`,
		order.OrderID, order.FarmerID, order.ItemName, order.Quantity, order.Timestamp)
	return err
}

// CreateTraceEvent appends one trace event to the turn log.
func (s *SQLiteStore) CreateTraceEvent(ctx context.Context, ev *domain.TraceEvent) error {
	payload := "{}"
	if len(ev.Payload) > 0 {
		payload = string(ev.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turn_events (event_id, session_id, turn_id, ts, type, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EventID, ev.SessionID, ev.TurnID, ev.Ts, string(ev.Type), payload)
	return err
}

// GetTraceEvents returns a session's trace events with ts > afterTs,
// ordered by ts ascending.
func (s *SQLiteStore) GetTraceEvents(ctx context.Context, sessionID string, afterTs int64, limit int) ([]domain.TraceEvent, error) {
	query := `SELECT event_id, session_id, turn_id, ts, type, payload FROM turn_events WHERE session_id = ? AND ts > ? ORDER BY ts ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, sessionID, afterTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.TraceEvent
	for rows.Next() {
		var ev domain.TraceEvent
		var typ string
		var payload sql.NullString
		if err := rows.Scan(&ev.EventID, &ev.SessionID, &ev.TurnID, &ev.Ts, &typ, &payload); err != nil {
			return nil, err
		}
		ev.Type = domain.TraceEventType(typ)
		if payload.Valid {
			ev.Payload = []byte(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
