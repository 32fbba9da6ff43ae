package accounts

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/identity"
)

type SessionRecorder interface {
	RecordSessionEvent(ctx context.Context, eventType, userID string, metadata map[string]any) error
}

// RecordSessions stores every session change until ctx is done or events is closed.
// Failures are logged; a lost audit row never blocks sign-in.
func RecordSessions(ctx context.Context, events <-chan identity.SessionEvent, rec SessionRecorder, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			err := rec.RecordSessionEvent(writeCtx, string(evt.Type), evt.UserID, map[string]any{
				"email": evt.Email,
				"at":    evt.At.UTC().Format(time.RFC3339),
			})
			cancel()
			if err != nil {
				logger.Error("record session event failed", "event", evt.Type, "user_id", evt.UserID, "err", err)
			}
		}
	}
}
