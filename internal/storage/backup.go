package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logx "gigboard/pkg/logx"
)

const (
	backupKeep     = 2
	backupInterval = 7 * 24 * time.Hour
)

// Backup copies the database file into a backups/ directory next to it,
// skipping the copy when the newest backup is younger than the rotation
// interval. Old backups beyond the keep count are removed. Failures are
// logged and swallowed; a missed backup never blocks a cleanup sweep.
func (s *Store) Backup(ctx context.Context, now time.Time) {
	dir := filepath.Join(filepath.Dir(s.path), "backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warn("backup dir create failed", logx.Err(err))
		return
	}

	existing, err := listBackups(dir)
	if err != nil {
		s.log.Warn("backup listing failed", logx.Err(err))
		return
	}
	if len(existing) > 0 {
		newest := existing[len(existing)-1]
		if now.Sub(newest.modTime) < backupInterval {
			return
		}
	}

	// Checkpoint the WAL so the copy is self-contained.
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		s.log.Warn("wal checkpoint failed", logx.Err(err))
	}

	name := "gigboard-" + now.Format("2006-01-02") + ".db"
	dst := filepath.Join(dir, name)
	if err := copyFile(s.path, dst); err != nil {
		s.log.Warn("backup copy failed", logx.String("dst", dst), logx.Err(err))
		return
	}
	s.log.Info("backup written", logx.String("path", dst))

	existing, err = listBackups(dir)
	if err != nil {
		return
	}
	for len(existing) > backupKeep {
		victim := existing[0]
		existing = existing[1:]
		if err := os.Remove(victim.path); err != nil {
			s.log.Warn("backup prune failed", logx.String("path", victim.path), logx.Err(err))
		}
	}
}

type backupFile struct {
	path    string
	modTime time.Time
}

// listBackups returns backup files sorted oldest first.
func listBackups(dir string) ([]backupFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []backupFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, backupFile{
			path:    filepath.Join(dir, e.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].modTime.Before(out[j].modTime) })
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
