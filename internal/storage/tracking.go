package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ---- gigs ----

func (s *Store) InsertGig(ctx context.Context, g Gig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gigs(gig_id, author_id, category_id, origin_id, created_at, expires_at, status)
		 VALUES(?,?,?,?,?,?,?)`,
		g.ID, g.AuthorID, nullStr(g.CategoryID), g.OriginID,
		millis(g.CreatedAt), millis(g.ExpiresAt), string(g.Status))
	if isUnique(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) GetGig(ctx context.Context, id string) (Gig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT gig_id, author_id, category_id, origin_id, created_at, expires_at, status
		 FROM gigs WHERE gig_id = ?`, id)
	return scanGig(row)
}

func scanGig(row *sql.Row) (Gig, error) {
	var g Gig
	var cat sql.NullString
	var created, expires int64
	var status string
	err := row.Scan(&g.ID, &g.AuthorID, &cat, &g.OriginID, &created, &expires, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return Gig{}, ErrNotFound
	}
	if err != nil {
		return Gig{}, err
	}
	g.CategoryID = cat.String
	g.CreatedAt = fromMillis(created)
	g.ExpiresAt = fromMillis(expires)
	g.Status = GigStatus(status)
	return g, nil
}

// ApproveGig flips a gig to approved and stamps its expiry.
func (s *Store) ApproveGig(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE gigs SET status = ?, expires_at = ? WHERE gig_id = ?`,
		string(GigApproved), millis(expiresAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteGig removes the logical record; payload, instances, applications
// and reports cascade.
func (s *Store) DeleteGig(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM gigs WHERE gig_id = ?`, id)
	return err
}

func (s *Store) GigIDsByAuthor(ctx context.Context, authorID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gig_id FROM gigs WHERE author_id = ?`, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ExpiredGigIDs lists approved gigs whose expiry has passed.
func (s *Store) ExpiredGigIDs(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT gig_id FROM gigs WHERE expires_at < ? AND status = ?`,
		millis(now), string(GigApproved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// DeleteOrphanedGigsBefore removes gigs that have no remaining instances and
// were created before the cutoff. This reconciles gigs whose fan-out never
// produced an instance (or whose instances were all pruned).
func (s *Store) DeleteOrphanedGigsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM gigs
		 WHERE gig_id NOT IN (SELECT gig_id FROM gig_instances) AND created_at < ?`,
		millis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
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

// ---- payloads ----

func (s *Store) PutPayload(ctx context.Context, p Payload) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO gig_payloads(gig_id, title, description, pay, timeline)
		 VALUES(?,?,?,?,?)`,
		p.GigID, p.Title, p.Description, p.Pay, nullStr(p.Timeline))
	return err
}

func (s *Store) GetPayload(ctx context.Context, gigID string) (Payload, error) {
	var p Payload
	var timeline sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT gig_id, title, description, pay, timeline FROM gig_payloads WHERE gig_id = ?`,
		gigID).Scan(&p.GigID, &p.Title, &p.Description, &p.Pay, &timeline)
	if errors.Is(err, sql.ErrNoRows) {
		return Payload{}, ErrNotFound
	}
	if err != nil {
		return Payload{}, err
	}
	p.Timeline = timeline.String
	return p, nil
}

// ---- instances ----

func (s *Store) InsertInstance(ctx context.Context, in Instance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gig_instances(message_id, gig_id, guild_id, channel_id, created_at)
		 VALUES(?,?,?,?,?)`,
		in.MessageID, in.GigID, in.GuildID, in.ChannelID, millis(in.CreatedAt))
	if isUnique(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) GetInstanceByMessage(ctx context.Context, messageID string) (Instance, error) {
	var in Instance
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, gig_id, guild_id, channel_id, created_at
		 FROM gig_instances WHERE message_id = ?`, messageID).
		Scan(&in.MessageID, &in.GigID, &in.GuildID, &in.ChannelID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, ErrNotFound
	}
	if err != nil {
		return Instance{}, err
	}
	in.CreatedAt = fromMillis(created)
	return in, nil
}

func (s *Store) InstancesForGig(ctx context.Context, gigID string) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, gig_id, guild_id, channel_id, created_at
		 FROM gig_instances WHERE gig_id = ?`, gigID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

func (s *Store) DeleteInstance(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM gig_instances WHERE message_id = ?`, messageID)
	return err
}

// StaleInstances lists instances created before the cutoff, regardless of
// their gig's status.
func (s *Store) StaleInstances(ctx context.Context, cutoff time.Time) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, gig_id, guild_id, channel_id, created_at
		 FROM gig_instances WHERE created_at < ?`, millis(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

func scanInstances(rows *sql.Rows) ([]Instance, error) {
	var out []Instance
	for rows.Next() {
		var in Instance
		var created int64
		if err := rows.Scan(&in.MessageID, &in.GigID, &in.GuildID, &in.ChannelID, &created); err != nil {
			return nil, err
		}
		in.CreatedAt = fromMillis(created)
		out = append(out, in)
	}
	return out, rows.Err()
}

// ---- rate limits ----

// LastPost returns the last successful posting time for (user, channel).
func (s *Store) LastPost(ctx context.Context, userID, channelID string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_post_at FROM rate_limits WHERE user_id = ? AND channel_id = ?`,
		userID, channelID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return fromMillis(ms), true, nil
}

// TouchRateLimit overwrites the (user, channel) entry with the given time.
// Last write wins; there is no counter.
func (s *Store) TouchRateLimit(ctx context.Context, userID, channelID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rate_limits(user_id, channel_id, last_post_at) VALUES(?,?,?)`,
		userID, channelID, millis(at))
	return err
}

// ---- applications & reports ----

// InsertApplication records a (gig, applicant) pair. A duplicate returns
// ErrConflict; the uniqueness constraint is the race arbiter.
func (s *Store) InsertApplication(ctx context.Context, gigID, applicantID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications(gig_id, applicant_id) VALUES(?,?)`, gigID, applicantID)
	if isUnique(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) HasApplication(ctx context.Context, gigID, applicantID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM applications WHERE gig_id = ? AND applicant_id = ?`,
		gigID, applicantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertReport records a (gig, reporter) pair. A duplicate returns ErrConflict.
func (s *Store) InsertReport(ctx context.Context, gigID, reporterID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(gig_id, reporter_id) VALUES(?,?)`, gigID, reporterID)
	if isUnique(err) {
		return ErrConflict
	}
	return err
}

// ---- cleanup log ----

func (s *Store) AppendCleanupLog(ctx context.Context, e CleanupLogEntry) error {
	if e.RunAt.IsZero() {
		e.RunAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cleanup_log(run_at, deleted_gigs, deleted_instances) VALUES(?,?,?)`,
		millis(e.RunAt), e.DeletedGigs, e.DeletedInstances)
	return err
}

func (s *Store) PruneCleanupLog(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cleanup_log WHERE run_at < ?`, millis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupLogEntries returns sweep audit rows, newest first.
func (s *Store) CleanupLogEntries(ctx context.Context, limit int) ([]CleanupLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_at, deleted_gigs, deleted_instances FROM cleanup_log
		 ORDER BY run_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CleanupLogEntry
	for rows.Next() {
		var e CleanupLogEntry
		var ms int64
		if err := rows.Scan(&ms, &e.DeletedGigs, &e.DeletedInstances); err != nil {
			return nil, err
		}
		e.RunAt = fromMillis(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}
