package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"PriceSentinel/internal/model"
)

// ErrNotFound is returned when a rule id does not exist.
var ErrNotFound = errors.New("rule not found")

// Store persists alert rules and alert history in a SQLite database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && !strings.HasPrefix(dbPath, ":") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for concurrent API reads while the engine writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			symbol             TEXT NOT NULL DEFAULT 'BTCUSDT',
			type               TEXT NOT NULL,
			status             TEXT NOT NULL DEFAULT 'active',
			threshold          REAL NOT NULL DEFAULT 0,
			volatility_window  INTEGER NOT NULL DEFAULT 0,
			volatility_percent REAL NOT NULL DEFAULT 0,
			start_price        REAL NOT NULL DEFAULT 0,
			end_price          REAL NOT NULL DEFAULT 0,
			upper_price        REAL NOT NULL DEFAULT 0,
			lower_price        REAL NOT NULL DEFAULT 0,
			range_mode         TEXT NOT NULL DEFAULT '',
			confirm_percent    REAL NOT NULL DEFAULT 0,
			cooldown_minutes   INTEGER NOT NULL DEFAULT 5,
			is_one_time        INTEGER NOT NULL DEFAULT 0,
			with_volume        INTEGER NOT NULL DEFAULT 0,
			last_triggered_at  INTEGER,
			created_at         INTEGER NOT NULL,
			updated_at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_rules_status ON alert_rules(status)`,

		`CREATE TABLE IF NOT EXISTS alert_history (
			id            TEXT PRIMARY KEY,
			rule_id       TEXT NOT NULL,
			rule_name     TEXT NOT NULL,
			symbol        TEXT NOT NULL,
			type          TEXT NOT NULL,
			current_price REAL NOT NULL,
			message       TEXT NOT NULL,
			triggered_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_history_triggered_at ON alert_history(triggered_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

const ruleColumns = `id, name, symbol, type, status,
	threshold, volatility_window, volatility_percent,
	start_price, end_price, upper_price, lower_price, range_mode, confirm_percent,
	cooldown_minutes, is_one_time, with_volume,
	last_triggered_at, created_at, updated_at`

// CreateRule inserts a new rule, assigning it a fresh id.
func (s *Store) CreateRule(r *model.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.StatusActive
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.Exec(`INSERT INTO alert_rules (`+ruleColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Name, r.Symbol, string(r.Type), string(r.Status),
		r.Threshold, r.VolatilityWindow, r.VolatilityPercent,
		r.StartPrice, r.EndPrice, r.UpperPrice, r.LowerPrice, string(r.RangeMode), r.ConfirmPercent,
		r.CooldownMinutes, boolToInt(r.IsOneTime), boolToInt(r.WithVolume),
		nil, now.Unix(), now.Unix(),
	)
	return err
}

// ListRules returns all rules, newest first.
func (s *Store) ListRules() ([]model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT ` + ruleColumns + ` FROM alert_rules ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// FindActive returns active rules in a stable order (creation order).
func (s *Store) FindActive() ([]model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT `+ruleColumns+` FROM alert_rules WHERE status = ? ORDER BY created_at, id`,
		string(model.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// GetRule returns one rule or ErrNotFound.
func (s *Store) GetRule(id string) (*model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRule rewrites a rule's mutable fields.
func (s *Store) UpdateRule(r *model.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE alert_rules SET
		name = ?, symbol = ?, type = ?, status = ?,
		threshold = ?, volatility_window = ?, volatility_percent = ?,
		start_price = ?, end_price = ?, upper_price = ?, lower_price = ?, range_mode = ?, confirm_percent = ?,
		cooldown_minutes = ?, is_one_time = ?, with_volume = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.Symbol, string(r.Type), string(r.Status),
		r.Threshold, r.VolatilityWindow, r.VolatilityPercent,
		r.StartPrice, r.EndPrice, r.UpperPrice, r.LowerPrice, string(r.RangeMode), r.ConfirmPercent,
		r.CooldownMinutes, boolToInt(r.IsOneTime), boolToInt(r.WithVolume), time.Now().Unix(),
		r.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// UpdateStatus sets a rule's status.
func (s *Store) UpdateStatus(id string, status model.RuleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE alert_rules SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// UpdateLastTriggeredNow stamps the rule's last trigger time with the
// current time. The write is synchronous: once it returns, the cooldown
// gate for subsequent ticks is in force.
func (s *Store) UpdateLastTriggeredNow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	res, err := s.db.Exec(`UPDATE alert_rules SET last_triggered_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// DeleteRule removes a rule. The second return reports whether it existed.
func (s *Store) DeleteRule(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountActiveRules returns the number of active rules.
func (s *Store) CountActiveRules() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM alert_rules WHERE status = ?`,
		string(model.StatusActive)).Scan(&n)
	return n, err
}

// AppendAlert persists one fired alert.
func (s *Store) AppendAlert(a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO alert_history
		(id, rule_id, rule_name, symbol, type, current_price, message, triggered_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		uuid.NewString(), a.RuleID, a.RuleName, a.Symbol, string(a.Type),
		a.Price, a.Message, a.Timestamp.Unix(),
	)
	return err
}

// ListAlerts returns the most recent alerts, newest first.
func (s *Store) ListAlerts(limit int) ([]model.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, rule_id, rule_name, symbol, type, current_price, message, triggered_at
		FROM alert_history ORDER BY triggered_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ListAlertsByRule returns a rule's most recent alerts, newest first.
func (s *Store) ListAlertsByRule(ruleID string, limit int) ([]model.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, rule_id, rule_name, symbol, type, current_price, message, triggered_at
		FROM alert_history WHERE rule_id = ? ORDER BY triggered_at DESC, id LIMIT ?`, ruleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// CountAlertsSince returns the number of alerts fired at or after t.
func (s *Store) CountAlertsSince(t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM alert_history WHERE triggered_at >= ?`, t.Unix()).Scan(&n)
	return n, err
}

// DeleteAlertsOlderThan removes history entries older than the given
// number of days, returning how many were deleted.
func (s *Store) DeleteAlertsOlderThan(days int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := s.db.Exec(`DELETE FROM alert_history WHERE triggered_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var r model.Rule
	var ruleType, status, rangeMode string
	var oneTime, withVolume int
	var lastTriggered sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&r.ID, &r.Name, &r.Symbol, &ruleType, &status,
		&r.Threshold, &r.VolatilityWindow, &r.VolatilityPercent,
		&r.StartPrice, &r.EndPrice, &r.UpperPrice, &r.LowerPrice, &rangeMode, &r.ConfirmPercent,
		&r.CooldownMinutes, &oneTime, &withVolume,
		&lastTriggered, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.Type = model.RuleType(ruleType)
	r.Status = model.RuleStatus(status)
	r.RangeMode = model.RangeMode(rangeMode)
	r.IsOneTime = oneTime != 0
	r.WithVolume = withVolume != 0
	if lastTriggered.Valid {
		t := time.Unix(lastTriggered.Int64, 0)
		r.LastTriggeredAt = &t
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return &r, nil
}

func scanRules(rows *sql.Rows) ([]model.Rule, error) {
	var out []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanAlerts(rows *sql.Rows) ([]model.AlertRecord, error) {
	var out []model.AlertRecord
	for rows.Next() {
		var a model.AlertRecord
		var alertType string
		var triggeredAt int64
		if err := rows.Scan(&a.ID, &a.RuleID, &a.RuleName, &a.Symbol, &alertType,
			&a.Price, &a.Message, &triggeredAt); err != nil {
			return nil, err
		}
		a.Type = model.RuleType(alertType)
		a.TriggeredAt = time.Unix(triggeredAt, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
