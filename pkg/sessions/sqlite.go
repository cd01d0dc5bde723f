// Package sessions persists controller sessions, plans, and step results
// to SQLite so runs survive process restarts and can be inspected after
// the fact. It implements controller.SessionStore; the controller treats
// every write as best-effort and never aborts a run on store failure.
package sessions

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/damarr/helmsman/pkg/controller"
)

// SQLiteStore is a controller.SessionStore backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens or creates a session database at the given path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// OpenInMemory opens a private in-memory session database, useful for
// testing without touching disk.
func OpenInMemory() (*SQLiteStore, error) {
	return Open(":memory:")
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		message_id      TEXT NOT NULL,
		phase           TEXT NOT NULL,
		config          TEXT NOT NULL,
		final_response  TEXT,
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL,
		completed_at    INTEGER
	);
	CREATE TABLE IF NOT EXISTS plans (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		goal           TEXT NOT NULL,
		assumptions    TEXT NOT NULL,
		revision_count INTEGER NOT NULL,
		created_at     INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS plan_steps (
		id               TEXT PRIMARY KEY,
		plan_id          TEXT NOT NULL,
		sequence         INTEGER NOT NULL,
		description      TEXT NOT NULL,
		expected_outcome TEXT NOT NULL,
		action           TEXT NOT NULL,
		status           TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS step_results (
		step_id         TEXT PRIMARY KEY,
		success         INTEGER NOT NULL,
		output          TEXT,
		error           TEXT,
		tool_executions TEXT NOT NULL,
		duration_ms     INTEGER NOT NULL,
		completed_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plans_session ON plans(session_id);
	CREATE INDEX IF NOT EXISTS idx_steps_plan ON plan_steps(plan_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create session schema: %w", err)
	}
	return nil
}

// SaveSession implements controller.SessionStore.
func (s *SQLiteStore) SaveSession(session *controller.Session) error {
	phase, err := json.Marshal(session.Phase)
	if err != nil {
		return fmt.Errorf("failed to serialize phase: %w", err)
	}
	config, err := json.Marshal(session.Config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	var completedAt interface{}
	if session.CompletedAt != nil {
		completedAt = session.CompletedAt.UnixMilli()
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions
		 (id, conversation_id, message_id, phase, config, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.ConversationID, session.MessageID,
		string(phase), string(config),
		session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// UpdatePhase implements controller.SessionStore.
func (s *SQLiteStore) UpdatePhase(sessionID string, phase controller.Phase) error {
	encoded, err := json.Marshal(phase)
	if err != nil {
		return fmt.Errorf("failed to serialize phase: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE sessions SET phase = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now().UnixMilli(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update phase: %w", err)
	}
	return nil
}

// SavePlan implements controller.SessionStore.
func (s *SQLiteStore) SavePlan(sessionID string, plan *controller.Plan) error {
	assumptions, err := json.Marshal(plan.Assumptions)
	if err != nil {
		return fmt.Errorf("failed to serialize assumptions: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO plans
		 (id, session_id, goal, assumptions, revision_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		plan.ID, sessionID, plan.Goal, string(assumptions),
		plan.RevisionCount, plan.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// SavePlanStep implements controller.SessionStore.
func (s *SQLiteStore) SavePlanStep(planID string, step controller.PlanStep) error {
	action, err := json.Marshal(step.Action)
	if err != nil {
		return fmt.Errorf("failed to serialize step action: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO plan_steps
		 (id, plan_id, sequence, description, expected_outcome, action, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		step.ID, planID, step.Sequence, step.Description,
		step.ExpectedOutcome, string(action), string(step.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to save plan step: %w", err)
	}
	return nil
}

// UpdateStepStatus implements controller.SessionStore.
func (s *SQLiteStore) UpdateStepStatus(stepID string, status controller.StepStatus) error {
	_, err := s.db.Exec(
		`UPDATE plan_steps SET status = ? WHERE id = ?`,
		string(status), stepID,
	)
	if err != nil {
		return fmt.Errorf("failed to update step status: %w", err)
	}
	return nil
}

// SaveStepResult implements controller.SessionStore.
func (s *SQLiteStore) SaveStepResult(result controller.StepResult) error {
	output, err := json.Marshal(result.Output)
	if err != nil {
		return fmt.Errorf("failed to serialize step output: %w", err)
	}
	executions, err := json.Marshal(result.ToolExecutions)
	if err != nil {
		return fmt.Errorf("failed to serialize tool executions: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO step_results
		 (step_id, success, output, error, tool_executions, duration_ms, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.StepID, boolToInt(result.Success), string(output), result.Error,
		string(executions), result.DurationMS, result.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save step result: %w", err)
	}
	return nil
}

// MarkCompleted implements controller.SessionStore.
func (s *SQLiteStore) MarkCompleted(sessionID string, response string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.Exec(
		`UPDATE sessions SET final_response = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		response, now, now, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session completed: %w", err)
	}
	return nil
}

// SessionRow is a stored session as read back from the database.
type SessionRow struct {
	ID             string
	ConversationID string
	MessageID      string
	Phase          controller.Phase
	Config         controller.Config
	FinalResponse  string
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// GetSession reads a stored session back.
func (s *SQLiteStore) GetSession(id string) (SessionRow, error) {
	row, err := scanSessionRow(s.db.QueryRow(
		`SELECT id, conversation_id, message_id, phase, config, final_response, updated_at, completed_at
		 FROM sessions WHERE id = ?`, id,
	).Scan)
	if err == sql.ErrNoRows {
		return SessionRow{}, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return SessionRow{}, fmt.Errorf("failed to read session: %w", err)
	}
	return row, nil
}

// ListSessions returns up to limit sessions, most recently updated first.
// A non-positive limit lists everything.
func (s *SQLiteStore) ListSessions(limit int) ([]SessionRow, error) {
	query := `SELECT id, conversation_id, message_id, phase, config, final_response, updated_at, completed_at
	          FROM sessions ORDER BY updated_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		row, err := scanSessionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, row)
	}
	return sessions, rows.Err()
}

func scanSessionRow(scan func(...interface{}) error) (SessionRow, error) {
	var (
		row         SessionRow
		phase       string
		config      string
		response    sql.NullString
		updatedAt   int64
		completedAt sql.NullInt64
	)
	err := scan(&row.ID, &row.ConversationID, &row.MessageID, &phase, &config,
		&response, &updatedAt, &completedAt)
	if err != nil {
		return SessionRow{}, err
	}

	if err := json.Unmarshal([]byte(phase), &row.Phase); err != nil {
		return SessionRow{}, fmt.Errorf("failed to parse phase: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &row.Config); err != nil {
		return SessionRow{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if response.Valid {
		row.FinalResponse = response.String
	}
	row.UpdatedAt = time.UnixMilli(updatedAt)
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		row.CompletedAt = &t
	}
	return row, nil
}

// PlanRow is a stored plan as read back from the database.
type PlanRow struct {
	ID            string
	SessionID     string
	Goal          string
	Assumptions   []string
	RevisionCount int
	CreatedAt     time.Time
}

// GetPlan reads the most recent plan of a session.
func (s *SQLiteStore) GetPlan(sessionID string) (PlanRow, error) {
	var (
		row         PlanRow
		assumptions string
		createdAt   int64
	)
	err := s.db.QueryRow(
		`SELECT id, session_id, goal, assumptions, revision_count, created_at
		 FROM plans WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID,
	).Scan(&row.ID, &row.SessionID, &row.Goal, &assumptions, &row.RevisionCount, &createdAt)
	if err == sql.ErrNoRows {
		return PlanRow{}, fmt.Errorf("no plan stored for session %s", sessionID)
	}
	if err != nil {
		return PlanRow{}, fmt.Errorf("failed to read plan: %w", err)
	}

	if err := json.Unmarshal([]byte(assumptions), &row.Assumptions); err != nil {
		return PlanRow{}, fmt.Errorf("failed to parse assumptions: %w", err)
	}
	row.CreatedAt = time.UnixMilli(createdAt)
	return row, nil
}

// GetPlanSteps reads all stored steps of a plan, ordered by sequence.
func (s *SQLiteStore) GetPlanSteps(planID string) ([]controller.PlanStep, error) {
	rows, err := s.db.Query(
		`SELECT id, sequence, description, expected_outcome, action, status
		 FROM plan_steps WHERE plan_id = ? ORDER BY sequence`, planID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan steps: %w", err)
	}
	defer rows.Close()

	var steps []controller.PlanStep
	for rows.Next() {
		var (
			step   controller.PlanStep
			action string
			status string
		)
		if err := rows.Scan(&step.ID, &step.Sequence, &step.Description,
			&step.ExpectedOutcome, &action, &status); err != nil {
			return nil, fmt.Errorf("failed to scan plan step: %w", err)
		}
		if err := json.Unmarshal([]byte(action), &step.Action); err != nil {
			return nil, fmt.Errorf("failed to parse step action: %w", err)
		}
		step.Status = controller.StepStatus(status)
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// GetStepResult reads a stored step result back.
func (s *SQLiteStore) GetStepResult(stepID string) (controller.StepResult, error) {
	var (
		result      controller.StepResult
		success     int
		output      sql.NullString
		executions  string
		completedAt int64
	)
	err := s.db.QueryRow(
		`SELECT step_id, success, output, error, tool_executions, duration_ms, completed_at
		 FROM step_results WHERE step_id = ?`, stepID,
	).Scan(&result.StepID, &success, &output, &result.Error, &executions,
		&result.DurationMS, &completedAt)
	if err == sql.ErrNoRows {
		return controller.StepResult{}, fmt.Errorf("step result %s not found", stepID)
	}
	if err != nil {
		return controller.StepResult{}, fmt.Errorf("failed to read step result: %w", err)
	}

	result.Success = success != 0
	if output.Valid && output.String != "" {
		if err := json.Unmarshal([]byte(output.String), &result.Output); err != nil {
			return controller.StepResult{}, fmt.Errorf("failed to parse step output: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(executions), &result.ToolExecutions); err != nil {
		return controller.StepResult{}, fmt.Errorf("failed to parse tool executions: %w", err)
	}
	result.CompletedAt = time.UnixMilli(completedAt)
	return result, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
