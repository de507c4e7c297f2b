package bot

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/persona-hq/persona/internal/gateway"
)

// pollReminders delivers this bot's due reminders over the live connection.
// It queries only under the runtime's own key, so sibling bots never race
// over the same rows. Stops when the connection's serve context ends.
func (r *Runtime) pollReminders(ctx context.Context, conn gateway.Connection) {
	ticker := time.NewTicker(r.opts.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.deliverDue(ctx, conn)
		}
	}
}

func (r *Runtime) deliverDue(ctx context.Context, conn gateway.Connection) {
	due, err := r.shared.Store.DueReminders(ctx, r.key, time.Now())
	if err != nil {
		r.logger.Warn("reminder query failed", "error", err)
		return
	}

	for _, rem := range due {
		msg := fmt.Sprintf("Reminder for <%s>: %s", rem.UserID, rem.Message)
		if err := conn.Send(ctx, rem.ChannelID, msg); err != nil {
			// Leave it pending; the next poll or connection retries it.
			r.logger.Warn("reminder delivery failed", "id", rem.ID, "error", err)
			return
		}
		if err := r.shared.Store.CompleteReminder(ctx, r.key, rem.ID); err != nil {
			r.logger.Warn("reminder completion failed", "id", rem.ID, "error", err)
			continue
		}
		r.reminders.Add(ctx, 1, metric.WithAttributes(r.botAttr))
	}
}
