package observability

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/iamwavecut/strikeguard"

var (
	auditMu     sync.RWMutex
	auditLogger = zap.NewNop()
)

// Init installs the JSON audit logger and the tracer provider. The returned
// function flushes both.
func Init(ctx context.Context) (func(context.Context) error, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	SetAuditLogger(logger.Named("audit"))

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	log.WithField("object", "Observability").Debug("telemetry initialized")

	return func(ctx context.Context) error {
		_ = logger.Sync()
		return tp.Shutdown(ctx)
	}, nil
}

func SetAuditLogger(logger *zap.Logger) {
	auditMu.Lock()
	defer auditMu.Unlock()
	auditLogger = logger
}

func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// AuditEvent is one enforcement decision, written as a single JSON line.
type AuditEvent struct {
	AuditID     string
	ChatID      int64
	UserID      int64
	Action      string
	Tier        string
	Score       int
	Strikes     int
	Reasons     []string
	Fingerprint string
}

func Audit(e AuditEvent) {
	auditMu.RLock()
	logger := auditLogger
	auditMu.RUnlock()

	logger.Info("moderation action",
		zap.String("audit_id", e.AuditID),
		zap.Int64("chat_id", e.ChatID),
		zap.Int64("user_id", e.UserID),
		zap.String("action", e.Action),
		zap.String("tier", e.Tier),
		zap.Int("score", e.Score),
		zap.Int("strikes", e.Strikes),
		zap.Strings("reasons", e.Reasons),
		zap.String("fingerprint", e.Fingerprint),
	)
}
