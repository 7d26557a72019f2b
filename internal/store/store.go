package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	_ "github.com/glebarez/go-sqlite"

	"github.com/cartpilot/cartpilot/internal/workflow"
)

// Store is the sqlite-backed persistence layer: workflow checkpoints
// keyed by run id, finished plan history, and user settings.
type Store struct {
	DB *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT PRIMARY KEY,
			state TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS meal_plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATETIME DEFAULT CURRENT_TIMESTAMP,
			prompt TEXT,
			plan_text TEXT,
			shopping_list TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			return nil, err
		}
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Get loads the checkpointed workflow state for a run, reporting
// whether one exists.
func (s *Store) Get(ctx context.Context, runID string) (workflow.State, bool, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE run_id = ?`, runID).Scan(&raw)
	if err == sql.ErrNoRows {
		return workflow.State{}, false, nil
	}
	if err != nil {
		return workflow.State{}, false, err
	}

	var st workflow.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return workflow.State{}, false, err
	}
	return st, true, nil
}

// Put persists the workflow state, replacing any previous checkpoint
// for the same run.
func (s *Store) Put(ctx context.Context, st workflow.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`REPLACE INTO checkpoints (run_id, state, updated_at) VALUES (?, ?, datetime('now'))`,
		st.RunID, string(raw))
	return err
}

type PlanRecord struct {
	ID       int
	Date     string
	Prompt   string
	PlanText string
	Items    []string
}

func (s *Store) SavePlan(prompt, planText string, items []string) error {
	listJSON, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(
		`INSERT INTO meal_plans (prompt, plan_text, shopping_list) VALUES (?, ?, ?)`,
		prompt, planText, string(listJSON))
	return err
}

func (s *Store) RecentPlans(limit int) ([]PlanRecord, error) {
	rows, err := s.DB.Query(
		`SELECT id, date, prompt, plan_text, shopping_list FROM meal_plans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []PlanRecord
	for rows.Next() {
		var p PlanRecord
		var listJSON string
		if err := rows.Scan(&p.ID, &p.Date, &p.Prompt, &p.PlanText, &listJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(listJSON), &p.Items); err != nil {
			p.Items = nil
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// PastItems aggregates every item from recorded plans into a single
// comma-separated string, used to bias planning toward things the user
// has bought before.
func (s *Store) PastItems() (string, error) {
	rows, err := s.DB.Query(`SELECT shopping_list FROM meal_plans`)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var items []string
	for rows.Next() {
		var listJSON string
		if err := rows.Scan(&listJSON); err != nil {
			return "", err
		}
		var list []string
		if err := json.Unmarshal([]byte(listJSON), &list); err != nil {
			continue
		}
		for _, it := range list {
			it = strings.TrimSpace(it)
			if it == "" || seen[it] {
				continue
			}
			seen[it] = true
			items = append(items, it)
		}
	}
	return strings.Join(items, ", "), rows.Err()
}

func (s *Store) SaveSetting(key, value string) error {
	_, err := s.DB.Exec(`REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

func (s *Store) GetSetting(key, fallback string) string {
	var value string
	err := s.DB.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return fallback
	}
	return value
}
