package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"saas-control-plane/backend/internal/audit/domain"
	"saas-control-plane/backend/internal/platform/reqctx"
)

// SentinelOrgID is the org_id used for audit events that have no org (e.g. user_created, role_granted).
const SentinelOrgID = "_system"

// DefaultDedupWindow is the timestamp bucket width used in dedup keys.
const DefaultDedupWindow = time.Minute

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Store is the persistence the logger needs.
type Store interface {
	Create(ctx context.Context, entry *domain.AuditLog) (bool, error)
}

// Sink receives every record that was persisted.
type Sink interface {
	Emit(ctx context.Context, entry *domain.AuditLog)
}

// Entry is an audit record before it is keyed and persisted.
type Entry struct {
	OrgID      string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// AuditLogger writes a single audit event with explicit action and target.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, actorID, action, targetType, targetID string, metadata map[string]any)
}

// Options configures a Logger. Zero values select defaults.
type Options struct {
	IPExtractor IPExtractor
	DedupWindow time.Duration
	Sink        Sink
	Logger      *slog.Logger
}

// Logger persists audit entries with a dedup key.
type Logger struct {
	repo        Store
	ipExtractor IPExtractor
	window      time.Duration
	sink        Sink
	logger      *slog.Logger
	now         func() time.Time
}

// NewLogger returns a Logger that persists to repo. Without an IPExtractor the IP is read from reqctx.
func NewLogger(repo Store, opts Options) *Logger {
	if opts.IPExtractor == nil {
		opts.IPExtractor = reqctx.ClientIP
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Logger{
		repo:        repo,
		ipExtractor: opts.IPExtractor,
		window:      opts.DedupWindow,
		sink:        opts.Sink,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, orgID, actorID, action, targetType, targetID string, metadata map[string]any) {
	err := l.Record(ctx, Entry{
		OrgID:      orgID,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
	})
	if err != nil {
		l.logger.WarnContext(ctx, "audit: failed to log event", "action", action, "target_type", targetType, "target_id", targetID, "error", err)
	}
}

// Record persists e. A record whose dedup key already exists is skipped without error.
func (l *Logger) Record(ctx context.Context, e Entry) error {
	if l.repo == nil {
		return nil
	}
	if e.OrgID == "" {
		e.OrgID = SentinelOrgID
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now()
	}
	e.OccurredAt = e.OccurredAt.UTC()

	var meta string
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("audit: metadata: %w", err)
		}
		meta = string(b)
	}
	ip := l.ipExtractor(ctx)
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:         uuid.New().String(),
		OrgID:      e.OrgID,
		ActorID:    e.ActorID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		IP:         ip,
		Metadata:   meta,
		DedupKey:   DedupKey(e.ActorID, e.Action, e.TargetType, e.TargetID, e.OccurredAt, l.window),
		CreatedAt:  e.OccurredAt,
	}
	inserted, err := l.repo.Create(ctx, entry)
	if err != nil {
		return fmt.Errorf("audit: create %s: %w", e.Action, err)
	}
	if !inserted {
		l.logger.DebugContext(ctx, "audit: duplicate record skipped", "action", e.Action, "dedup_key", entry.DedupKey)
		return nil
	}
	if l.sink != nil {
		l.sink.Emit(ctx, entry)
	}
	return nil
}

// DedupKey identifies an (actor, action, target) within one window-wide time bucket.
func DedupKey(actorID, action, targetType, targetID string, at time.Time, window time.Duration) string {
	bucket := at.UTC().Truncate(window)
	sum := sha256.Sum256([]byte(actorID + "|" + action + "|" + targetType + "|" + targetID + "|" + bucket.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}
