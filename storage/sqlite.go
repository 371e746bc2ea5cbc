// SPDX-License-Identifier: BUSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// schema creates every table RecordCycle must be able to commit atomically,
// plus the indices the spec requires on (agent_id, timestamp) and the
// (agent_id, cycle_id) uniqueness constraint on trust_history.
const schema = `
CREATE TABLE IF NOT EXISTS agents (
	agent_id TEXT PRIMARY KEY,
	capabilities TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL,
	trust REAL NOT NULL,
	redemption_cycles_used INTEGER NOT NULL,
	suppression_entered_at_cycle INTEGER NOT NULL,
	last_probation_outcome INTEGER,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trust_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	cycle_id INTEGER NOT NULL,
	old_score REAL NOT NULL,
	new_score REAL NOT NULL,
	outcome INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	UNIQUE(agent_id, cycle_id)
);
CREATE INDEX IF NOT EXISTS idx_trust_history_agent_ts ON trust_history(agent_id, timestamp);

CREATE TABLE IF NOT EXISTS suppression_states (
	agent_id TEXT PRIMARY KEY,
	status INTEGER NOT NULL,
	cycle_entered INTEGER NOT NULL,
	redemption_attempts INTEGER NOT NULL,
	last_probation_outcome INTEGER
);

CREATE TABLE IF NOT EXISTS executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	agent_id TEXT NOT NULL DEFAULT '',
	cycle_id INTEGER NOT NULL,
	success INTEGER,
	latency_ms INTEGER NOT NULL,
	output_metadata TEXT NOT NULL DEFAULT '{}',
	error_kind TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_agent_ts ON executions(agent_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_executions_cycle ON executions(cycle_id);

CREATE TABLE IF NOT EXISTS drift_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	cycle_id INTEGER NOT NULL,
	delta REAL NOT NULL,
	window_mean_before REAL NOT NULL,
	window_mean_after REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drift_agent ON drift_events(agent_id);

CREATE TABLE IF NOT EXISTS mutations (
	cycle_id INTEGER PRIMARY KEY,
	old_trust REAL NOT NULL,
	old_suppression REAL NOT NULL,
	old_drift REAL NOT NULL,
	new_trust REAL NOT NULL,
	new_suppression REAL NOT NULL,
	new_drift REAL NOT NULL,
	observed_success_rate REAL NOT NULL,
	direction INTEGER NOT NULL,
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reflections (
	cycle_id INTEGER PRIMARY KEY,
	constraint_score INTEGER NOT NULL,
	notes TEXT NOT NULL DEFAULT '[]',
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS status_changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	cycle_id INTEGER NOT NULL,
	old_status INTEGER NOT NULL,
	new_status INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS capability_grants (
	agent_id TEXT NOT NULL,
	tag TEXT NOT NULL,
	granted INTEGER NOT NULL,
	granted_by TEXT NOT NULL DEFAULT '',
	timestamp TEXT NOT NULL,
	PRIMARY KEY (agent_id, tag)
);

CREATE TABLE IF NOT EXISTS cycle_success_rates (
	cycle_id INTEGER PRIMARY KEY,
	rate REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	permitted INTEGER NOT NULL,
	agent_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	cycle_id INTEGER NOT NULL DEFAULT 0,
	outcome INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	decision_timestamp TEXT NOT NULL,
	hash TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_log(agent_id);
`

const timeLayout = time.RFC3339Nano

// SQLiteStore is a modernc.org/sqlite-backed Store. RecordCycle runs inside
// a single SQL transaction spanning every table a cycle writes (all of the
// above except capability_grants and audit_log), giving the atomicity
// contract directly from the database rather than from application-level
// bookkeeping.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path and
// ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn.

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToNullInt(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func nullIntToBool(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 != 0
	return &b
}

// UpsertAgent idempotently registers or updates an agent.
func (s *SQLiteStore) UpsertAgent(agent Agent, overrideTrust bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin upsert agent: %w", err)
	}
	defer tx.Rollback()

	if !overrideTrust {
		row := tx.QueryRow(`SELECT trust, status, redemption_cycles_used, suppression_entered_at_cycle, last_probation_outcome FROM agents WHERE agent_id = ?`, agent.AgentID)
		var trust float64
		var status int
		var redemption int
		var suppressionCycle int64
		var lastOutcome sql.NullInt64
		if err := row.Scan(&trust, &status, &redemption, &suppressionCycle, &lastOutcome); err == nil {
			agent.Trust = trust
			agent.Status = AgentStatus(status)
			agent.RedemptionCyclesUsed = redemption
			agent.SuppressionEnteredAtCycle = suppressionCycle
			agent.LastProbationOutcome = nullIntToBool(lastOutcome)
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("storage: read existing agent: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO agents (agent_id, capabilities, status, trust, redemption_cycles_used, suppression_entered_at_cycle, last_probation_outcome, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			capabilities=excluded.capabilities,
			status=excluded.status,
			trust=excluded.trust,
			redemption_cycles_used=excluded.redemption_cycles_used,
			suppression_entered_at_cycle=excluded.suppression_entered_at_cycle,
			last_probation_outcome=excluded.last_probation_outcome,
			updated_at=excluded.updated_at
	`, agent.AgentID, strings.Join(agent.Capabilities, ","), int(agent.Status), agent.Trust,
		agent.RedemptionCyclesUsed, agent.SuppressionEnteredAtCycle, boolToNullInt(agent.LastProbationOutcome),
		nowOrUpdatedAt(agent.UpdatedAt))
	if err != nil {
		return fmt.Errorf("storage: upsert agent: %w", err)
	}
	return tx.Commit()
}

func nowOrUpdatedAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.Format(timeLayout)
}

// LoadAgents returns a snapshot of all registered agents.
func (s *SQLiteStore) LoadAgents() ([]Agent, error) {
	rows, err := s.db.Query(`SELECT agent_id, capabilities, status, trust, redemption_cycles_used, suppression_entered_at_cycle, last_probation_outcome, updated_at FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("storage: load agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		var caps string
		var status int
		var lastOutcome sql.NullInt64
		var updatedAt string
		if err := rows.Scan(&a.AgentID, &caps, &status, &a.Trust, &a.RedemptionCyclesUsed, &a.SuppressionEnteredAtCycle, &lastOutcome, &updatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan agent: %w", err)
		}
		a.Status = AgentStatus(status)
		a.LastProbationOutcome = nullIntToBool(lastOutcome)
		if caps != "" {
			a.Capabilities = strings.Split(caps, ",")
		}
		a.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordCycle runs every write in commit inside a single SQL transaction.
func (s *SQLiteStore) RecordCycle(commit CycleCommit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin record cycle: %w", err)
	}
	defer tx.Rollback()

	for _, e := range commit.Executions {
		meta, _ := json.Marshal(e.OutputMetadata)
		if _, err := tx.Exec(`INSERT INTO executions (task_id, agent_id, cycle_id, success, latency_ms, output_metadata, error_kind, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.TaskID, e.AgentID, e.CycleID, boolToNullInt(e.Success), e.LatencyMS, string(meta), string(e.ErrorKind), e.Timestamp.Format(timeLayout)); err != nil {
			return fmt.Errorf("storage: insert execution: %w", err)
		}
	}

	for _, t := range commit.TrustUpdates {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO trust_history (agent_id, cycle_id, old_score, new_score, outcome, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
			t.AgentID, t.CycleID, t.OldScore, t.NewScore, int(t.Outcome), t.Timestamp.Format(timeLayout)); err != nil {
			return fmt.Errorf("storage: insert trust history: %w", err)
		}
	}

	for _, sc := range commit.StatusChanges {
		if _, err := tx.Exec(`INSERT INTO status_changes (agent_id, cycle_id, old_status, new_status, reason) VALUES (?, ?, ?, ?, ?)`,
			sc.AgentID, sc.CycleID, int(sc.Old), int(sc.New), sc.Reason); err != nil {
			return fmt.Errorf("storage: insert status change: %w", err)
		}
	}

	for _, d := range commit.DriftEvents {
		if _, err := tx.Exec(`INSERT INTO drift_events (agent_id, cycle_id, delta, window_mean_before, window_mean_after) VALUES (?, ?, ?, ?, ?)`,
			d.AgentID, d.CycleID, d.Delta, d.WindowMeanBefore, d.WindowMeanAfter); err != nil {
			return fmt.Errorf("storage: insert drift event: %w", err)
		}
	}

	if commit.Mutation != nil {
		m := commit.Mutation
		if _, err := tx.Exec(`INSERT OR REPLACE INTO mutations (cycle_id, old_trust, old_suppression, old_drift, new_trust, new_suppression, new_drift, observed_success_rate, direction, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.CycleID, m.OldThresholds.TrustThreshold, m.OldThresholds.SuppressionThreshold, m.OldThresholds.DriftDelta,
			m.NewThresholds.TrustThreshold, m.NewThresholds.SuppressionThreshold, m.NewThresholds.DriftDelta,
			m.ObservedSuccessRate, int(m.Direction), m.Timestamp.Format(timeLayout)); err != nil {
			return fmt.Errorf("storage: insert mutation: %w", err)
		}
	}

	if commit.Reflection != nil {
		r := commit.Reflection
		notes, _ := json.Marshal(r.Notes)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO reflections (cycle_id, constraint_score, notes, timestamp) VALUES (?, ?, ?, ?)`,
			r.CycleID, r.ConstraintScore, string(notes), r.Timestamp.Format(timeLayout)); err != nil {
			return fmt.Errorf("storage: insert reflection: %w", err)
		}
	}

	for _, st := range commit.SuppressionStates {
		if _, err := tx.Exec(`INSERT INTO suppression_states (agent_id, status, cycle_entered, redemption_attempts, last_probation_outcome) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET status=excluded.status, cycle_entered=excluded.cycle_entered, redemption_attempts=excluded.redemption_attempts, last_probation_outcome=excluded.last_probation_outcome`,
			st.AgentID, int(st.Status), st.CycleEntered, st.RedemptionAttempts, boolToNullInt(st.LastProbationOutcome)); err != nil {
			return fmt.Errorf("storage: upsert suppression state: %w", err)
		}
	}

	for _, a := range commit.AgentSnapshots {
		if _, err := tx.Exec(`
			INSERT INTO agents (agent_id, capabilities, status, trust, redemption_cycles_used, suppression_entered_at_cycle, last_probation_outcome, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET
				status=excluded.status, trust=excluded.trust, redemption_cycles_used=excluded.redemption_cycles_used,
				suppression_entered_at_cycle=excluded.suppression_entered_at_cycle, last_probation_outcome=excluded.last_probation_outcome,
				updated_at=excluded.updated_at
		`, a.AgentID, strings.Join(a.Capabilities, ","), int(a.Status), a.Trust, a.RedemptionCyclesUsed,
			a.SuppressionEnteredAtCycle, boolToNullInt(a.LastProbationOutcome), nowOrUpdatedAt(a.UpdatedAt)); err != nil {
			return fmt.Errorf("storage: update agent snapshot: %w", err)
		}
	}

	if len(commit.Executions) > 0 {
		assigned, successes := 0, 0
		for _, e := range commit.Executions {
			if e.Success == nil {
				continue
			}
			assigned++
			if *e.Success {
				successes++
			}
		}
		if assigned > 0 {
			if _, err := tx.Exec(`INSERT OR REPLACE INTO cycle_success_rates (cycle_id, rate) VALUES (?, ?)`,
				commit.CycleID, float64(successes)/float64(assigned)); err != nil {
				return fmt.Errorf("storage: insert cycle success rate: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Stats aggregates counts over the last window cycles, or all time when
// window <= 0.
func (s *SQLiteStore) Stats(window int) (Stats, error) {
	var stats Stats

	cycleFilter := ""
	args := []any{}
	if window > 0 {
		cycleFilter = `WHERE cycle_id IN (SELECT cycle_id FROM executions GROUP BY cycle_id ORDER BY cycle_id DESC LIMIT ?)`
		args = append(args, window)
	}

	row := s.db.QueryRow(fmt.Sprintf(`
		SELECT COUNT(DISTINCT cycle_id),
		       COUNT(CASE WHEN success IS NOT NULL THEN 1 END),
		       COUNT(CASE WHEN success = 1 THEN 1 END),
		       COUNT(CASE WHEN success = 0 THEN 1 END)
		FROM executions %s`, cycleFilter), args...)
	if err := row.Scan(&stats.Cycles, &stats.Executions, &stats.Successes, &stats.Failures); err != nil {
		return stats, fmt.Errorf("storage: stats executions: %w", err)
	}

	row = s.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN status IN (0, 1) THEN 1 END),
			COUNT(CASE WHEN status = 2 THEN 1 END),
			COUNT(CASE WHEN status = 3 THEN 1 END),
			COALESCE(AVG(trust), 0)
		FROM agents`)
	if err := row.Scan(&stats.ActiveAgents, &stats.SuppressedAgents, &stats.ExcludedAgents, &stats.AverageTrust); err != nil {
		return stats, fmt.Errorf("storage: stats agents: %w", err)
	}
	return stats, nil
}

// TrustHistory returns up to limit entries for agentID, most recent first.
func (s *SQLiteStore) TrustHistory(agentID string, limit int) ([]TrustHistoryEntry, error) {
	query := `SELECT agent_id, cycle_id, old_score, new_score, outcome, timestamp FROM trust_history WHERE agent_id = ? ORDER BY cycle_id DESC`
	args := []any{agentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: trust history: %w", err)
	}
	defer rows.Close()

	var out []TrustHistoryEntry
	for rows.Next() {
		var e TrustHistoryEntry
		var outcome int
		var ts string
		if err := rows.Scan(&e.AgentID, &e.CycleID, &e.OldScore, &e.NewScore, &outcome, &ts); err != nil {
			return nil, fmt.Errorf("storage: scan trust history: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.Timestamp, _ = time.Parse(timeLayout, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentTrustSamples returns up to limit trailing trust values for agentID,
// oldest first.
func (s *SQLiteStore) RecentTrustSamples(agentID string, limit int) ([]float64, error) {
	query := `SELECT new_score FROM trust_history WHERE agent_id = ? ORDER BY cycle_id DESC`
	args := []any{agentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: trust samples: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("storage: scan trust sample: %w", err)
		}
		samples = append(samples, v)
	}
	// Reverse: query was most-recent-first, caller wants oldest-first.
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, rows.Err()
}

// RecentSuccessRates returns up to limit trailing per-cycle success rates,
// oldest first.
func (s *SQLiteStore) RecentSuccessRates(limit int) ([]float64, error) {
	query := `SELECT rate FROM cycle_success_rates ORDER BY cycle_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: success rates: %w", err)
	}
	defer rows.Close()

	var rates []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("storage: scan success rate: %w", err)
		}
		rates = append(rates, v)
	}
	for i, j := 0, len(rates)-1; i < j; i, j = i+1, j-1 {
		rates[i], rates[j] = rates[j], rates[i]
	}
	return rates, rows.Err()
}

// Executions returns execution results matching filter, oldest first.
func (s *SQLiteStore) Executions(filter ExecutionFilter) ([]ExecutionResult, error) {
	query := `SELECT task_id, agent_id, cycle_id, success, latency_ms, output_metadata, error_kind, timestamp FROM executions WHERE 1=1`
	var args []any
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.TaskID != "" {
		query += ` AND task_id = ?`
		args = append(args, filter.TaskID)
	}
	if !filter.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, filter.Since.Format(timeLayout))
	}
	if !filter.Until.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, filter.Until.Format(timeLayout))
	}
	query += ` ORDER BY id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: executions: %w", err)
	}
	defer rows.Close()

	out := make([]ExecutionResult, 0)
	for rows.Next() {
		var e ExecutionResult
		var success sql.NullInt64
		var meta, errKind, ts string
		if err := rows.Scan(&e.TaskID, &e.AgentID, &e.CycleID, &success, &e.LatencyMS, &meta, &errKind, &ts); err != nil {
			return nil, fmt.Errorf("storage: scan execution: %w", err)
		}
		e.Success = nullIntToBool(success)
		e.ErrorKind = ErrorKind(errKind)
		e.Timestamp, _ = time.Parse(timeLayout, ts)
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &e.OutputMetadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DriftEvents returns up to limit drift events for agentID, most recent
// first. An empty agentID matches all agents.
func (s *SQLiteStore) DriftEvents(agentID string, limit int) ([]DriftEvent, error) {
	query := `SELECT agent_id, cycle_id, delta, window_mean_before, window_mean_after FROM drift_events WHERE 1=1`
	var args []any
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: drift events: %w", err)
	}
	defer rows.Close()

	var out []DriftEvent
	for rows.Next() {
		var d DriftEvent
		if err := rows.Scan(&d.AgentID, &d.CycleID, &d.Delta, &d.WindowMeanBefore, &d.WindowMeanAfter); err != nil {
			return nil, fmt.Errorf("storage: scan drift event: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Mutations returns up to limit mutation records, most recent first.
func (s *SQLiteStore) Mutations(limit int) ([]Mutation, error) {
	query := `SELECT cycle_id, old_trust, old_suppression, old_drift, new_trust, new_suppression, new_drift, observed_success_rate, direction, timestamp FROM mutations ORDER BY cycle_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: mutations: %w", err)
	}
	defer rows.Close()

	var out []Mutation
	for rows.Next() {
		var m Mutation
		var direction int
		var ts string
		if err := rows.Scan(&m.CycleID, &m.OldThresholds.TrustThreshold, &m.OldThresholds.SuppressionThreshold, &m.OldThresholds.DriftDelta,
			&m.NewThresholds.TrustThreshold, &m.NewThresholds.SuppressionThreshold, &m.NewThresholds.DriftDelta,
			&m.ObservedSuccessRate, &direction, &ts); err != nil {
			return nil, fmt.Errorf("storage: scan mutation: %w", err)
		}
		m.Direction = MutationDirection(direction)
		m.Timestamp, _ = time.Parse(timeLayout, ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Reflections returns up to limit reflection records, most recent first.
func (s *SQLiteStore) Reflections(limit int) ([]Reflection, error) {
	query := `SELECT cycle_id, constraint_score, notes, timestamp FROM reflections ORDER BY cycle_id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: reflections: %w", err)
	}
	defer rows.Close()

	var out []Reflection
	for rows.Next() {
		var r Reflection
		var notes, ts string
		if err := rows.Scan(&r.CycleID, &r.ConstraintScore, &notes, &ts); err != nil {
			return nil, fmt.Errorf("storage: scan reflection: %w", err)
		}
		_ = json.Unmarshal([]byte(notes), &r.Notes)
		r.Timestamp, _ = time.Parse(timeLayout, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetCapabilityGrant records a capability grant or revocation.
func (s *SQLiteStore) SetCapabilityGrant(grant CapabilityGrant) error {
	_, err := s.db.Exec(`
		INSERT INTO capability_grants (agent_id, tag, granted, granted_by, timestamp) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, tag) DO UPDATE SET granted=excluded.granted, granted_by=excluded.granted_by, timestamp=excluded.timestamp
	`, grant.AgentID, grant.Tag, boolToNullInt(&grant.Granted), grant.GrantedBy, grant.Timestamp.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("storage: set capability grant: %w", err)
	}
	return nil
}

// CapabilityGrants returns the current grant state for agentID, keyed by
// tag.
func (s *SQLiteStore) CapabilityGrants(agentID string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT tag, granted FROM capability_grants WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("storage: capability grants: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var tag string
		var granted int
		if err := rows.Scan(&tag, &granted); err != nil {
			return nil, fmt.Errorf("storage: scan capability grant: %w", err)
		}
		out[tag] = granted != 0
	}
	return out, rows.Err()
}

// AppendAudit appends one record to the tamper-evident audit log.
func (s *SQLiteStore) AppendAudit(record AuditRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_log (id, permitted, agent_id, action, cycle_id, outcome, reason, decision_timestamp, hash, prev_hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, boolToNullInt(&record.Decision.Permitted), record.Decision.AgentID, record.Decision.Action, record.Decision.CycleID, int(record.Decision.Outcome), record.Decision.Reason,
		record.Decision.Timestamp.Format(timeLayout), record.Hash, record.PrevHash, record.Timestamp.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("storage: append audit: %w", err)
	}
	return nil
}

// QueryAudit returns audit records matching filter, oldest first (insertion
// order, via the table's implicit rowid).
func (s *SQLiteStore) QueryAudit(filter AuditFilter) ([]AuditRecord, error) {
	query := `SELECT id, permitted, agent_id, action, cycle_id, outcome, reason, decision_timestamp, hash, prev_hash, timestamp FROM audit_log WHERE 1=1`
	var args []any
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, filter.Action)
	}
	if !filter.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, filter.Since.Format(timeLayout))
	}
	if !filter.Until.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, filter.Until.Format(timeLayout))
	}
	if filter.PermittedOnly {
		query += ` AND permitted = 1`
	}
	if filter.DeniedOnly {
		query += ` AND permitted = 0`
	}
	query += ` ORDER BY rowid ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query audit: %w", err)
	}
	defer rows.Close()

	out := make([]AuditRecord, 0)
	for rows.Next() {
		var r AuditRecord
		var permitted sql.NullInt64
		var decisionTS, ts string
		var outcome int
		if err := rows.Scan(&r.ID, &permitted, &r.Decision.AgentID, &r.Decision.Action, &r.Decision.CycleID, &outcome, &r.Decision.Reason, &decisionTS, &r.Hash, &r.PrevHash, &ts); err != nil {
			return nil, fmt.Errorf("storage: scan audit record: %w", err)
		}
		if b := nullIntToBool(permitted); b != nil {
			r.Decision.Permitted = *b
		}
		r.Decision.Outcome = Outcome(outcome)
		r.Decision.Timestamp, _ = time.Parse(timeLayout, decisionTS)
		r.Timestamp, _ = time.Parse(timeLayout, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}
