package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/octoquest/internal/clock"
)

const instrumentationName = "github.com/fyrsmithlabs/octoquest/internal/progress"

// Config configures the progress store.
type Config struct {
	// Path is the progress document location. Default: progress.json
	Path string `koanf:"path"`

	// BackupDir holds timestamped backups and corruption-quarantine
	// artifacts. Default: a .backups directory next to Path.
	BackupDir string `koanf:"backup_dir"`

	// MaxBackups bounds backup retention. Default: 5
	MaxBackups int `koanf:"max_backups"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:       "progress.json",
		MaxBackups: 5,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Path == "" {
		c.Path = defaults.Path
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(filepath.Dir(c.Path), ".backups")
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = defaults.MaxBackups
	}
}

// Store owns the progress document. The caller is expected to be a single
// process; no cross-process locking is attempted.
type Store struct {
	cfg    *Config
	logger *zap.Logger
	clock  clock.Clock

	doc   Document
	known map[string]struct{}

	// marshal is replaceable in tests to simulate serialization failures.
	marshal func(any) ([]byte, error)

	tracer          trace.Tracer
	meter           metric.Meter
	saveCounter     metric.Int64Counter
	backupCounter   metric.Int64Counter
	recoveryCounter metric.Int64Counter
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock. For tests.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// NewStore creates the store and loads existing progress, recovering from
// corruption if needed. A missing file is not an error; the default
// document is held in memory until the first mutation persists it.
func NewStore(cfg *Config, logger *zap.Logger, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		cfg:     cfg,
		logger:  logger,
		clock:   clock.NewSystem(),
		marshal: marshalDocument,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create progress directory: %w", err)
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	s.initMetrics()

	s.doc = s.load()
	s.known = make(map[string]struct{}, len(s.doc.Achievements))
	for name := range s.doc.Achievements {
		s.known[name] = struct{}{}
	}

	s.logger.Info("initialized progress store",
		zap.String("path", cfg.Path),
		zap.Int("max_backups", cfg.MaxBackups),
	)
	return s, nil
}

func (s *Store) initMetrics() {
	var err error

	s.saveCounter, err = s.meter.Int64Counter(
		"octoquest.progress.saves_total",
		metric.WithDescription("Total number of progress document saves"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		s.logger.Warn("failed to create save counter", zap.Error(err))
	}

	s.backupCounter, err = s.meter.Int64Counter(
		"octoquest.progress.backups_total",
		metric.WithDescription("Total number of backups created"),
		metric.WithUnit("{backup}"),
	)
	if err != nil {
		s.logger.Warn("failed to create backup counter", zap.Error(err))
	}

	s.recoveryCounter, err = s.meter.Int64Counter(
		"octoquest.progress.recoveries_total",
		metric.WithDescription("Total number of corruption recoveries"),
		metric.WithUnit("{recovery}"),
	)
	if err != nil {
		s.logger.Warn("failed to create recovery counter", zap.Error(err))
	}
}

func marshalDocument(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// UpdateAchievement merges fields into the named achievement's attribute
// bag, stamps its last_updated, and persists. Unknown names are a caller
// defect and return *UnknownAchievementError without touching disk.
func (s *Store) UpdateAchievement(ctx context.Context, name string, fields map[string]any) error {
	ctx, span := s.tracer.Start(ctx, "progress.update_achievement")
	defer span.End()
	span.SetAttributes(attribute.String("achievement", name))

	if _, ok := s.known[name]; !ok {
		return &UnknownAchievementError{Name: name}
	}

	bag := s.doc.Achievements[name]
	for k, v := range fields {
		bag[k] = v
	}
	bag["last_updated"] = s.clock.Now().Format(timeLayout)

	// Keep bag values JSON-canonical so the in-memory document always
	// matches what a reload would produce.
	normalized, err := normalizeBag(bag)
	if err != nil {
		perr := &PersistError{Op: "serialize", Err: err}
		span.RecordError(perr)
		return perr
	}
	s.doc.Achievements[name] = normalized

	if err := s.persist(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info("updated achievement",
		zap.String("achievement", name),
		zap.Any("fields", fields),
	)
	return nil
}

// UpdateRepository applies the non-nil fields of upd and persists.
func (s *Store) UpdateRepository(ctx context.Context, upd RepositoryUpdate) error {
	ctx, span := s.tracer.Start(ctx, "progress.update_repository")
	defer span.End()

	if upd.Name != nil {
		s.doc.Repository.Name = *upd.Name
	}
	if upd.Created != nil {
		s.doc.Repository.Created = *upd.Created
	}
	if upd.URL != nil {
		s.doc.Repository.URL = *upd.URL
	}
	if upd.CreatedAt != nil {
		s.doc.Repository.CreatedAt = *upd.CreatedAt
	}

	if err := s.persist(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info("updated repository", zap.String("name", s.doc.Repository.Name))
	return nil
}

// IncrementStatistic adds amount to a named counter and persists. Unknown
// statistic names are silently ignored.
func (s *Store) IncrementStatistic(ctx context.Context, name string, amount int64) error {
	ctx, span := s.tracer.Start(ctx, "progress.increment_statistic")
	defer span.End()
	span.SetAttributes(attribute.String("statistic", name))

	if _, ok := s.doc.Statistics[name]; !ok {
		return nil
	}
	s.doc.Statistics[name] += amount

	if err := s.persist(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// AchievementProgress returns a copy of the named achievement's attribute
// bag. Unknown names return *UnknownAchievementError.
func (s *Store) AchievementProgress(name string) (map[string]any, error) {
	if _, ok := s.known[name]; !ok {
		return nil, &UnknownAchievementError{Name: name}
	}
	return copyBag(s.doc.Achievements[name]), nil
}

// IsCompleted reports whether the named achievement has its completed flag
// set. Unknown names read as not completed.
func (s *Store) IsCompleted(name string) bool {
	bag, ok := s.doc.Achievements[name]
	if !ok {
		return false
	}
	completed, _ := bag["completed"].(bool)
	return completed
}

// Completed returns the completed achievement names in a stable order.
func (s *Store) Completed() []string {
	var out []string
	for _, name := range achievementNames {
		if s.IsCompleted(name) {
			out = append(out, name)
		}
	}
	return out
}

// Document returns a deep copy of the current in-memory document.
func (s *Store) Document() Document {
	return copyDocument(s.doc)
}

// Export writes a one-shot full dump of the document to path, outside the
// normal persistence cycle.
func (s *Store) Export(path string) error {
	data, err := s.marshal(s.doc)
	if err != nil {
		return &PersistError{Op: "export serialize", Err: err}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return &PersistError{Op: "export write", Err: err}
	}
	s.logger.Info("exported progress", zap.String("path", path))
	return nil
}

// Reset restores the default document. It refuses to act unless confirmed,
// and snapshots the current state first.
func (s *Store) Reset(ctx context.Context, confirmed bool) error {
	ctx, span := s.tracer.Start(ctx, "progress.reset")
	defer span.End()

	if !confirmed {
		return ErrResetNotConfirmed
	}

	if _, err := os.Stat(s.cfg.Path); err == nil {
		s.createBackup()
	}

	s.doc = DefaultDocument(s.clock.Now())
	if err := s.persist(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Warn("progress has been reset to defaults")
	return nil
}

// Summary is an aggregate view of the document.
type Summary struct {
	TotalAchievements     int
	CompletedAchievements int
	CompletionPercent     float64
	Completed             []string
	RepositoryCreated     bool
	RepositoryName        string
	LastUpdated           string
	Statistics            map[string]int64
}

// Summarize returns counts, completion percentage, repository info, and a
// copy of the statistics.
func (s *Store) Summarize() Summary {
	completed := s.Completed()

	stats := make(map[string]int64, len(s.doc.Statistics))
	for k, v := range s.doc.Statistics {
		stats[k] = v
	}

	total := len(s.doc.Achievements)
	percent := 0.0
	if total > 0 {
		percent = float64(len(completed)) / float64(total) * 100
	}

	return Summary{
		TotalAchievements:     total,
		CompletedAchievements: len(completed),
		CompletionPercent:     percent,
		Completed:             completed,
		RepositoryCreated:     s.doc.Repository.Created,
		RepositoryName:        s.doc.Repository.Name,
		LastUpdated:           s.doc.Metadata.LastUpdated,
		Statistics:            stats,
	}
}
