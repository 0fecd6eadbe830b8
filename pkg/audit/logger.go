// Package audit keeps a compliance record of every completed analysis in a
// dedicated SQLite database. Records never contain session content.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/fairlens/pkg/demographics"
	"github.com/pario-ai/fairlens/pkg/models"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultQueryLimit = 100
	retentionInterval = time.Hour
)

// Option customizes a Logger.
type Option func(*Logger)

// WithLogger sets the zap logger used for retention failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Logger) { a.logger = l }
}

// WithClock replaces time.Now for retention cut-offs and missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Logger) { a.now = now }
}

// Logger writes and queries audit entries.
type Logger struct {
	db     *sql.DB
	cfg    models.AuditConfig
	logger *zap.Logger
	now    func() time.Time
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New opens the audit SQLite database, creates the schema and starts the
// hourly retention sweep.
func New(cfg models.AuditConfig, opts ...Option) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:     db,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		audit_id        TEXT PRIMARY KEY,
		subject_hash    TEXT NOT NULL,
		bias_score      REAL NOT NULL,
		confidence      REAL NOT NULL,
		alert_level     TEXT NOT NULL,
		layers          TEXT NOT NULL,
		participant_tag TEXT,
		created_at      TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_level ON audit_log(alert_level)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_log(subject_hash)`)
	return err
}

// Record writes the audit entry for a completed analysis.
func (l *Logger) Record(ctx context.Context, r *models.AnalysisResult) error {
	if l == nil || r == nil {
		return nil
	}
	all := r.LayerResults.All()
	layers := make([]string, len(all))
	for i, lr := range all {
		layers[i] = string(lr.Layer())
	}
	return l.Log(ctx, models.AuditEntry{
		SubjectHash:      l.SubjectKey(r.SubjectID),
		OverallBiasScore: r.OverallBiasScore,
		Confidence:       r.Confidence,
		AlertLevel:       r.AlertLevel,
		Layers:           layers,
		ParticipantTag:   demographics.ParticipantTag(r.Demographics),
		CreatedAt:        r.Timestamp,
	})
}

// SubjectKey returns the identifier stored for subjectID: its SHA-256 when
// hashing is enabled, otherwise the id itself.
func (l *Logger) SubjectKey(subjectID string) string {
	if l.cfg.HashSubjectIDs {
		return HashSubjectID(subjectID)
	}
	return subjectID
}

// Log inserts an audit entry. Missing ids and timestamps are filled in.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(audit_id, subject_hash, bias_score, confidence, alert_level, layers,
		 participant_tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SubjectHash, entry.OverallBiasScore, entry.Confidence,
		string(entry.AlertLevel), strings.Join(entry.Layers, ","),
		entry.ParticipantTag, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Query returns audit entries matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT audit_id, subject_hash, bias_score, confidence, alert_level,
		layers, participant_tag, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.AlertLevel != "" {
		q += " AND alert_level = ?"
		args = append(args, string(opts.AlertLevel))
	}
	if opts.MinScore > 0 {
		q += " AND bias_score >= ?"
		args = append(args, opts.MinScore)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, formatTime(opts.Since))
	}
	if opts.SubjectHash != "" {
		q += " AND subject_hash = ?"
		args = append(args, opts.SubjectHash)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e       models.AuditEntry
			level   string
			layers  string
			tag     sql.NullString
			created string
		)
		if err := rows.Scan(
			&e.ID, &e.SubjectHash, &e.OverallBiasScore, &e.Confidence,
			&level, &layers, &tag, &created,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.AlertLevel = models.AlertLevel(level)
		if layers != "" {
			e.Layers = strings.Split(layers, ",")
		}
		e.ParticipantTag = tag.String
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", created, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns counts and average scores grouped by alert level and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT alert_level, date(created_at) as day, count(*) as cnt, avg(bias_score)
		 FROM audit_log GROUP BY alert_level, day ORDER BY day DESC, alert_level`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var (
			s     models.AuditStat
			level string
			day   sql.NullString
		)
		if err := rows.Scan(&level, &day, &s.Count, &s.AvgScore); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.AlertLevel = models.AlertLevel(level)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the retention period. A retention of
// zero days keeps everything.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := l.now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := l.Cleanup(context.Background())
			if err != nil {
				l.logger.Warn("audit retention sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				l.logger.Info("audit retention sweep", zap.Int64("removed", n))
			}
		}
	}
}

// HashSubjectID returns the SHA-256 hex hash of a subject id.
func HashSubjectID(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:])
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
