package audit

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"

	"saas-control-plane/backend/internal/audit/domain"
)

// NewOTelSink returns a Sink that mirrors audit records as OTel log records.
// If provider is nil, returns nil.
func NewOTelSink(provider otellog.LoggerProvider) Sink {
	if provider == nil {
		return nil
	}
	return &otelSink{logger: provider.Logger("saas.audit")}
}

type otelSink struct {
	logger otellog.Logger
}

func (s *otelSink) Emit(ctx context.Context, a *domain.AuditLog) {
	rec := otellog.Record{}
	rec.SetTimestamp(a.CreatedAt)
	rec.SetSeverity(otellog.SeverityInfo)
	if a.Metadata != "" {
		rec.SetBody(otellog.StringValue(a.Metadata))
	}
	rec.AddAttributes(
		otellog.String("event.name", "audit."+a.Action),
		otellog.String("audit.id", a.ID),
		otellog.String("org_id", a.OrgID),
		otellog.String("action", a.Action),
		otellog.String("target_type", a.TargetType),
		otellog.String("target_id", a.TargetID),
		otellog.String("ip", a.IP),
	)
	if a.ActorID != "" {
		rec.AddAttributes(otellog.String("actor_id", a.ActorID))
	}
	s.logger.Emit(ctx, rec)
}
