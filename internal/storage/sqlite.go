package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gigboard/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the SQLite-backed persistence layer.
type Store struct {
	db  *sql.DB
	log logx.Logger

	path string
}

// Open opens (creating if necessary) the database at cfg.Path and applies
// migrations. Initialization failure is fatal to the caller by contract.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, log: log, path: cfg.Path}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location (used by backup rotation).
func (s *Store) Path() string { return s.path }

func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func millis(t time.Time) int64       { return t.UnixMilli() }
func fromMillis(ms int64) time.Time  { return time.UnixMilli(ms) }
func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// ---- roles ----

func (s *Store) AddRole(ctx context.Context, kind RoleKind, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO roles(kind, role_id) VALUES(?,?)`, string(kind), roleID)
	return err
}

func (s *Store) RemoveRole(ctx context.Context, kind RoleKind, roleID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM roles WHERE kind = ? AND role_id = ?`, string(kind), roleID)
	return err
}

// ListRoles returns every bound role id grouped by capability.
func (s *Store) ListRoles(ctx context.Context) (map[RoleKind][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, role_id FROM roles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[RoleKind][]string{}
	for rows.Next() {
		var kind, id string
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, err
		}
		out[RoleKind(kind)] = append(out[RoleKind(kind)], id)
	}
	return out, rows.Err()
}

// ---- categories ----

func (s *Store) CreateCategory(ctx context.Context, c Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories(category_id, name, approve_mode) VALUES(?,?,?)`,
		c.ID, c.Name, boolInt(c.ApproveMode))
	if isUnique(err) {
		return ErrConflict
	}
	return err
}

// DeleteCategory removes the category; channel associations and category
// bans go with it via cascade.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE category_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetApproveMode(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET approve_mode = ? WHERE category_id = ?`, boolInt(enabled), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id, name, approve_mode FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		var mode int
		if err := rows.Scan(&c.ID, &c.Name, &mode); err != nil {
			return nil, err
		}
		c.ApproveMode = mode != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- channel bindings ----

func (s *Store) AddTarget(ctx context.Context, categoryID, channelID string) error {
	return s.addBinding(ctx, "category_targets", categoryID, channelID)
}

func (s *Store) RemoveTarget(ctx context.Context, categoryID, channelID string) error {
	return s.removeBinding(ctx, "category_targets", categoryID, channelID)
}

func (s *Store) AddReport(ctx context.Context, categoryID, channelID string) error {
	return s.addBinding(ctx, "category_reports", categoryID, channelID)
}

func (s *Store) RemoveReport(ctx context.Context, categoryID, channelID string) error {
	return s.removeBinding(ctx, "category_reports", categoryID, channelID)
}

func (s *Store) addBinding(ctx context.Context, table, categoryID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+`(category_id, channel_id) VALUES(?,?)`,
		categoryID, channelID)
	return err
}

func (s *Store) removeBinding(ctx context.Context, table, categoryID, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE category_id = ? AND channel_id = ?`,
		categoryID, channelID)
	return err
}

func (s *Store) ListTargets(ctx context.Context) ([]ChannelBinding, error) {
	return s.listBindings(ctx, "category_targets")
}

func (s *Store) ListReports(ctx context.Context) ([]ChannelBinding, error) {
	return s.listBindings(ctx, "category_reports")
}

func (s *Store) listBindings(ctx context.Context, table string) ([]ChannelBinding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category_id, channel_id FROM `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelBinding
	for rows.Next() {
		var b ChannelBinding
		if err := rows.Scan(&b.CategoryID, &b.ChannelID); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ---- diagnostics channels ----

func (s *Store) AddDiagChannel(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO diag_channels(channel_id) VALUES(?)`, channelID)
	return err
}

func (s *Store) RemoveDiagChannel(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM diag_channels WHERE channel_id = ?`, channelID)
	return err
}

func (s *Store) ListDiagChannels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id FROM diag_channels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- channel policies ----

// SetChannelExpiry upserts the expiry override, preserving any cooldown
// override on the same channel. days == nil clears the override.
func (s *Store) SetChannelExpiry(ctx context.Context, channelID string, days *int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_policies(channel_id, expiry_days, cooldown_days) VALUES(?,?,NULL)
		 ON CONFLICT(channel_id) DO UPDATE SET expiry_days = excluded.expiry_days`,
		channelID, nullInt(days))
	return err
}

// SetChannelCooldown upserts the cooldown override, preserving any expiry
// override on the same channel. days == nil clears the override.
func (s *Store) SetChannelCooldown(ctx context.Context, channelID string, days *int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_policies(channel_id, expiry_days, cooldown_days) VALUES(?,NULL,?)
		 ON CONFLICT(channel_id) DO UPDATE SET cooldown_days = excluded.cooldown_days`,
		channelID, nullInt(days))
	return err
}

func (s *Store) ListChannelPolicies(ctx context.Context) ([]ChannelPolicy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, expiry_days, cooldown_days FROM channel_policies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelPolicy
	for rows.Next() {
		var p ChannelPolicy
		var exp, cd sql.NullInt64
		if err := rows.Scan(&p.ChannelID, &exp, &cd); err != nil {
			return nil, err
		}
		if exp.Valid {
			v := exp.Int64
			p.ExpiryDays = &v
		}
		if cd.Valid {
			v := cd.Int64
			p.CooldownDays = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- bans ----

// AddGuildBan records a guild-scoped ban. Re-banning is a no-op.
func (s *Store) AddGuildBan(ctx context.Context, b Ban) error {
	return s.addBan(ctx, "guild_bans", "guild_id", b)
}

// AddCategoryBan records a category-scoped ban. Re-banning is a no-op.
func (s *Store) AddCategoryBan(ctx context.Context, b Ban) error {
	return s.addBan(ctx, "category_bans", "category_id", b)
}

func (s *Store) addBan(ctx context.Context, table, scopeCol string, b Ban) error {
	if b.BannedAt.IsZero() {
		b.BannedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+`(`+scopeCol+`, user_id, banned_at, banned_by, reason) VALUES(?,?,?,?,?)`,
		b.ScopeID, b.UserID, millis(b.BannedAt), nullStr(b.BannedBy), nullStr(b.Reason))
	return err
}

// RemoveGuildBan lifts a guild-scoped ban, reporting how many rows matched.
func (s *Store) RemoveGuildBan(ctx context.Context, guildID, userID string) (int64, error) {
	return s.removeBan(ctx, "guild_bans", "guild_id", guildID, userID)
}

// RemoveCategoryBan lifts a category-scoped ban, reporting how many rows matched.
func (s *Store) RemoveCategoryBan(ctx context.Context, categoryID, userID string) (int64, error) {
	return s.removeBan(ctx, "category_bans", "category_id", categoryID, userID)
}

func (s *Store) removeBan(ctx context.Context, table, scopeCol, scopeID, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE `+scopeCol+` = ? AND user_id = ?`, scopeID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) IsGuildBanned(ctx context.Context, guildID, userID string) (bool, error) {
	return s.isBanned(ctx, "guild_bans", "guild_id", guildID, userID)
}

func (s *Store) IsCategoryBanned(ctx context.Context, categoryID, userID string) (bool, error) {
	return s.isBanned(ctx, "category_bans", "category_id", categoryID, userID)
}

func (s *Store) isBanned(ctx context.Context, table, scopeCol, scopeID, userID string) (bool, error) {
	if scopeID == "" || userID == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE `+scopeCol+` = ? AND user_id = ?`, scopeID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
