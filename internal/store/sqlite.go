package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vlogdigital3/agendia-de-viagem/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore backs the message history, the package catalog, and the
// per-instance channel configs. It implements domain.MessageStore,
// domain.CatalogStore, and domain.ConfigStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_history (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id   TEXT NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT,
		tool_call_id TEXT,
		tool_name    TEXT,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON chat_history(session_id, id);

	CREATE TABLE IF NOT EXISTS packages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title       TEXT NOT NULL,
		description TEXT,
		images      TEXT,
		videos      TEXT,
		price       TEXT,
		category    TEXT,
		active      INTEGER DEFAULT 1,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_packages_active ON packages(active);

	CREATE TABLE IF NOT EXISTS channel_configs (
		instance_name     TEXT PRIMARY KEY,
		active            INTEGER DEFAULT 1,
		ignore_groups     INTEGER DEFAULT 1,
		whitelist         TEXT,
		blacklist         TEXT,
		gateway_url       TEXT,
		gateway_apikey    TEXT,
		human_agent_phone TEXT,
		created_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- domain.MessageStore ---

func (s *SQLiteStore) AppendTurns(ctx context.Context, sessionID string, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, t := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_history (session_id, role, content, tool_call_id, tool_name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, t.Role, t.Content, t.ToolCallID, t.ToolName, now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LastTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_call_id, tool_name
		 FROM chat_history WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var callID, name sql.NullString
		if err := rows.Scan(&t.Role, &t.Content, &callID, &name); err != nil {
			return nil, err
		}
		t.ToolCallID = callID.String
		t.ToolName = name.String
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) LastRecord(ctx context.Context, sessionID string) (*domain.TurnRecord, error) {
	var rec domain.TurnRecord
	var callID, name sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, role, content, tool_call_id, tool_name, created_at
		 FROM chat_history WHERE session_id = ?
		 ORDER BY id DESC LIMIT 1`, sessionID,
	).Scan(&rec.ID, &rec.SessionID, &rec.Turn.Role, &rec.Turn.Content, &callID, &name, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Turn.ToolCallID = callID.String
	rec.Turn.ToolName = name.String
	return &rec, nil
}

// LastUserRecord returns the newest stored user turn. The duplicate-retry
// check keys on it because user and assistant turns land together, which
// makes the overall newest record an assistant turn between deliveries.
func (s *SQLiteStore) LastUserRecord(ctx context.Context, sessionID string) (*domain.TurnRecord, error) {
	var rec domain.TurnRecord
	var callID, name sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, role, content, tool_call_id, tool_name, created_at
		 FROM chat_history WHERE session_id = ? AND role = 'user'
		 ORDER BY id DESC LIMIT 1`, sessionID,
	).Scan(&rec.ID, &rec.SessionID, &rec.Turn.Role, &rec.Turn.Content, &callID, &name, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Turn.ToolCallID = callID.String
	rec.Turn.ToolName = name.String
	return &rec, nil
}

func (s *SQLiteStore) LastAssistantText(ctx context.Context, sessionID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM chat_history
		 WHERE session_id = ? AND role = 'assistant'
		 ORDER BY id DESC LIMIT 1`, sessionID,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func (s *SQLiteStore) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE created_at < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- domain.CatalogStore ---

func (s *SQLiteStore) SearchPackages(ctx context.Context, keywords []string, category string, limit int) ([]domain.Package, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT id, title, description, images, videos, price, category, active
	          FROM packages WHERE active = 1`
	var args []any

	if len(keywords) > 0 {
		var ors []string
		for _, k := range keywords {
			pattern := "%" + strings.ToLower(k) + "%"
			ors = append(ors, "(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)")
			args = append(args, pattern, pattern)
		}
		query += " AND (" + strings.Join(ors, " OR ") + ")"
	}
	if category != "" {
		query += " AND LOWER(category) = ?"
		args = append(args, strings.ToLower(category))
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPackages(rows)
}

func (s *SQLiteStore) FindPackageByTitle(ctx context.Context, name string) (*domain.Package, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(name)) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, images, videos, price, category, active
		 FROM packages WHERE active = 1 AND LOWER(title) LIKE ? LIMIT 1`, pattern,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pkgs, err := scanPackages(rows)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, nil
	}
	return &pkgs[0], nil
}

func (s *SQLiteStore) ActivePackages(ctx context.Context, limit int) ([]domain.Package, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, images, videos, price, category, active
		 FROM packages WHERE active = 1 ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPackages(rows)
}

// SavePackage inserts a package. The dashboard owns the catalog in
// production; this is used by seeding and tests.
func (s *SQLiteStore) SavePackage(ctx context.Context, p domain.Package) (int64, error) {
	images, err := json.Marshal(p.Images)
	if err != nil {
		return 0, err
	}
	videos, err := json.Marshal(p.Videos)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO packages (title, description, images, videos, price, category, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Description, string(images), string(videos), p.Price, p.Category, boolToInt(p.Active),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanPackages(rows *sql.Rows) ([]domain.Package, error) {
	var pkgs []domain.Package
	for rows.Next() {
		var p domain.Package
		var images, videos, price, category sql.NullString
		var active int
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &images, &videos, &price, &category, &active); err != nil {
			return nil, err
		}
		p.Price = price.String
		p.Category = category.String
		p.Active = active != 0
		if images.String != "" {
			_ = json.Unmarshal([]byte(images.String), &p.Images)
		}
		if videos.String != "" {
			_ = json.Unmarshal([]byte(videos.String), &p.Videos)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

// --- domain.ConfigStore ---

func (s *SQLiteStore) GetChannelConfig(ctx context.Context, instanceName string) (*domain.ChannelConfig, error) {
	var cfg domain.ChannelConfig
	var active, ignoreGroups int
	var whitelist, blacklist, url, apikey, human sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT instance_name, active, ignore_groups, whitelist, blacklist,
		        gateway_url, gateway_apikey, human_agent_phone
		 FROM channel_configs WHERE instance_name = ?`, instanceName,
	).Scan(&cfg.InstanceName, &active, &ignoreGroups, &whitelist, &blacklist, &url, &apikey, &human)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg.Active = active != 0
	cfg.IgnoreGroups = ignoreGroups != 0
	cfg.GatewayURL = url.String
	cfg.GatewayAPIKey = apikey.String
	cfg.HumanAgentPhone = human.String
	if whitelist.String != "" {
		_ = json.Unmarshal([]byte(whitelist.String), &cfg.Whitelist)
	}
	if blacklist.String != "" {
		_ = json.Unmarshal([]byte(blacklist.String), &cfg.Blacklist)
	}
	return &cfg, nil
}

func (s *SQLiteStore) EnsureChannelConfig(ctx context.Context, defaults domain.ChannelConfig) (*domain.ChannelConfig, error) {
	existing, err := s.GetChannelConfig(ctx, defaults.InstanceName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	whitelist, err := json.Marshal(defaults.Whitelist)
	if err != nil {
		return nil, err
	}
	blacklist, err := json.Marshal(defaults.Blacklist)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_configs
		 (instance_name, active, ignore_groups, whitelist, blacklist, gateway_url, gateway_apikey, human_agent_phone)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		defaults.InstanceName, boolToInt(defaults.Active), boolToInt(defaults.IgnoreGroups),
		string(whitelist), string(blacklist), defaults.GatewayURL, defaults.GatewayAPIKey, defaults.HumanAgentPhone,
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("bootstrapped channel config", "instance", defaults.InstanceName)
	return s.GetChannelConfig(ctx, defaults.InstanceName)
}

// UpdateChannelConfig overwrites a channel config. Exposed for the CLI;
// the dashboard performs the same mutation against the same table.
func (s *SQLiteStore) UpdateChannelConfig(ctx context.Context, cfg domain.ChannelConfig) error {
	whitelist, err := json.Marshal(cfg.Whitelist)
	if err != nil {
		return err
	}
	blacklist, err := json.Marshal(cfg.Blacklist)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE channel_configs SET active=?, ignore_groups=?, whitelist=?, blacklist=?,
		        gateway_url=?, gateway_apikey=?, human_agent_phone=?, updated_at=?
		 WHERE instance_name=?`,
		boolToInt(cfg.Active), boolToInt(cfg.IgnoreGroups), string(whitelist), string(blacklist),
		cfg.GatewayURL, cfg.GatewayAPIKey, cfg.HumanAgentPhone, time.Now(), cfg.InstanceName,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
