package goSession

import (
	"io"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"go.uber.org/zap"
)

// Audit event types emitted by the Client.
const (
	AuditLogin            = "login"
	AuditRefresh          = "refresh"
	AuditSessionRecovered = "session_recovered"
	AuditProfileLoad      = "profile_load"
	AuditLogout           = "logout"
	AuditLogoutAll        = "logout_all"
	AuditInactivityLogout = "inactivity_logout"
)

type (
	// AuditEvent is one session lifecycle record.
	AuditEvent = internalaudit.Event
	// AuditSink receives audit events on the dispatcher goroutine.
	AuditSink      = internalaudit.Sink
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	ZapSink        = internalaudit.ZapSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZapSink(l *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(l)
}
