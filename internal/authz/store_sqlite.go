package authz

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/schleuse/internal/logger"
)

// WorkspaceStore persists session approvals per workspace directory so a
// later session in the same workspace can start from them. It is the
// durable complement to SessionStore; Denied and Abort answers are never
// written.
type WorkspaceStore struct {
	db     *sql.DB
	dbPath string
	log    *logger.Logger
}

// OpenWorkspaceStore opens (and if necessary creates) the approval
// database at dbPath.
func OpenWorkspaceStore(dbPath string, log *logger.Logger) (*WorkspaceStore, error) {
	if log == nil {
		log = logger.Global()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create approval database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval database: %w", err)
	}

	store := &WorkspaceStore{db: db, dbPath: dbPath, log: log.WithPrefix("approval-db")}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize approval schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *WorkspaceStore) Close() error {
	return s.db.Close()
}

func (s *WorkspaceStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS command_approvals (
		workspace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		command    TEXT NOT NULL,
		decision   TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (workspace, key)
	);

	CREATE INDEX IF NOT EXISTS idx_command_approvals_workspace ON command_approvals(workspace);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create approval schema: %w", err)
	}
	return nil
}

// RecordApproval persists a session approval for a workspace. Decisions
// that are not session approvals are ignored.
func (s *WorkspaceStore) RecordApproval(workspace string, key ApprovalKey, argv []string, decision ApprovalDecision) error {
	if decision != ApprovedForSession {
		return nil
	}
	command, err := json.Marshal(argv)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO command_approvals (workspace, key, command, decision) VALUES (?, ?, ?, ?)`,
		workspace, key.String(), string(command), decision.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}
	s.log.Debug("persisted approval %s for workspace %s", key, workspace)
	return nil
}

// ApprovedCommands returns the commands previously approved for this
// workspace, oldest first.
func (s *WorkspaceStore) ApprovedCommands(workspace string) ([][]string, error) {
	rows, err := s.db.Query(
		`SELECT command FROM command_approvals WHERE workspace = ? AND decision = ? ORDER BY created_at`,
		workspace, ApprovedForSession.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var commands [][]string
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("failed to scan approval row: %w", err)
		}
		var argv []string
		if err := json.Unmarshal([]byte(encoded), &argv); err != nil {
			s.log.Warn("skipping undecodable approval row in workspace %s: %v", workspace, err)
			continue
		}
		commands = append(commands, argv)
	}
	return commands, rows.Err()
}

// ClearWorkspace removes every persisted approval for a workspace.
func (s *WorkspaceStore) ClearWorkspace(workspace string) error {
	result, err := s.db.Exec(`DELETE FROM command_approvals WHERE workspace = ?`, workspace)
	if err != nil {
		return fmt.Errorf("failed to clear workspace approvals: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.log.Info("cleared %d persisted approvals for workspace %s", n, workspace)
	}
	return nil
}
