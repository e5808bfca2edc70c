package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	backupPrefix      = "progress_"
	corruptedPrefix   = "corrupted_"
	backupSuffix      = ".json"
	backupStampLayout = "20060102_150405.000000000"
)

// persist flushes the in-memory document to disk: stamp metadata, back up
// the existing file, serialize to a temp file in the target directory,
// fsync, and atomically rename over the target. Any failure leaves the
// previously persisted file intact.
func (s *Store) persist(ctx context.Context) error {
	s.doc.Metadata.LastUpdated = s.clock.Now().Format(timeLayout)

	if _, err := os.Stat(s.cfg.Path); err == nil {
		s.createBackup()
	}

	data, err := s.marshal(s.doc)
	if err != nil {
		return &PersistError{Op: "serialize", Err: err}
	}

	if err := s.writeAtomic(s.cfg.Path, data); err != nil {
		return &PersistError{Op: "write", Err: err}
	}

	if s.saveCounter != nil {
		s.saveCounter.Add(ctx, 1)
	}
	s.logger.Debug("persisted progress", zap.String("path", s.cfg.Path))
	return nil
}

// writeAtomic writes data to path via a same-directory temp file and rename,
// so an interrupted write can never leave a partial document behind.
func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".progress-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// createBackup copies the current progress file into the backup directory.
// Backup failures are logged, not fatal: losing a backup must not block a
// save.
func (s *Store) createBackup() {
	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		s.logger.Error("failed to read progress file for backup", zap.Error(err))
		return
	}

	stamp := s.clock.Now().Format(backupStampLayout)
	backupPath := filepath.Join(s.cfg.BackupDir, backupPrefix+stamp+backupSuffix)

	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		s.logger.Error("failed to create backup", zap.Error(err))
		return
	}

	if s.backupCounter != nil {
		s.backupCounter.Add(context.Background(), 1)
	}
	s.logger.Debug("created backup", zap.String("path", backupPath))

	s.pruneBackups()
}

// pruneBackups removes backups beyond the newest MaxBackups.
func (s *Store) pruneBackups() {
	backups := s.listBackups()
	for _, b := range backups[min(len(backups), s.cfg.MaxBackups):] {
		if err := os.Remove(b.path); err != nil {
			s.logger.Error("failed to remove old backup",
				zap.String("path", b.path),
				zap.Error(err),
			)
			continue
		}
		s.logger.Debug("removed old backup", zap.String("path", b.path))
	}
}

type backupFile struct {
	path    string
	modTime int64
	name    string
}

// listBackups returns normal backups, newest first by modification time
// (name as a tie-break, since names embed the creation stamp).
func (s *Store) listBackups() []backupFile {
	entries, err := os.ReadDir(s.cfg.BackupDir)
	if err != nil {
		return nil
	}

	var backups []backupFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{
			path:    filepath.Join(s.cfg.BackupDir, name),
			modTime: info.ModTime().UnixNano(),
			name:    name,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime != backups[j].modTime {
			return backups[i].modTime > backups[j].modTime
		}
		return backups[i].name > backups[j].name
	})
	return backups
}

// load reads the progress document, recovering from corruption. It always
// terminates in a usable document and never returns an error to the caller.
func (s *Store) load() Document {
	data, err := os.ReadFile(s.cfg.Path)
	if os.IsNotExist(err) {
		s.logger.Info("no existing progress file, starting from defaults")
		return DefaultDocument(s.clock.Now())
	}
	if err == nil {
		if strings.TrimSpace(string(data)) == "" {
			s.logger.Warn("progress file is empty, starting from defaults")
			return DefaultDocument(s.clock.Now())
		}
		var doc Document
		jsonErr := json.Unmarshal(data, &doc)
		if jsonErr == nil {
			s.logger.Info("loaded progress file", zap.String("path", s.cfg.Path))
			return doc
		}
		err = jsonErr
	}

	s.logger.Error("failed to load progress file", zap.Error(err))
	s.quarantineCorrupted()

	if doc, ok := s.recoverFromBackup(); ok {
		return doc
	}

	s.logger.Warn("no valid backup found, starting from defaults")
	return DefaultDocument(s.clock.Now())
}

// quarantineCorrupted moves the unreadable progress file aside for
// debugging.
func (s *Store) quarantineCorrupted() {
	if _, err := os.Stat(s.cfg.Path); err != nil {
		return
	}
	stamp := s.clock.Now().Format(backupStampLayout)
	quarantine := filepath.Join(s.cfg.BackupDir, corruptedPrefix+stamp+backupSuffix)
	if err := os.Rename(s.cfg.Path, quarantine); err != nil {
		s.logger.Error("failed to quarantine corrupted progress file", zap.Error(err))
		return
	}
	s.logger.Info("quarantined corrupted progress file", zap.String("path", quarantine))
}

// recoverFromBackup scans backups newest first and restores the first one
// that parses.
func (s *Store) recoverFromBackup() (Document, bool) {
	for _, b := range s.listBackups() {
		data, err := os.ReadFile(b.path)
		if err != nil {
			s.logger.Warn("failed to read backup", zap.String("path", b.path), zap.Error(err))
			continue
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			s.logger.Warn("backup is corrupted, skipping", zap.String("path", b.path), zap.Error(err))
			continue
		}

		// Restore the recovered state to the main file.
		if err := s.writeAtomic(s.cfg.Path, data); err != nil {
			s.logger.Error("failed to restore backup to main file", zap.Error(err))
		}

		if s.recoveryCounter != nil {
			s.recoveryCounter.Add(context.Background(), 1)
		}
		s.logger.Info("recovered progress from backup", zap.String("path", b.path))
		return doc, true
	}
	return Document{}, false
}
