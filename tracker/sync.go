package tracker

import (
	"context"
	"encoding/json"

	"mabletask/tracker/logger"
	"mabletask/tracker/metrics"
	"mabletask/tracker/models"
)

// SessionStore upserts session snapshots keyed by session id.
type SessionStore interface {
	UpsertSession(ctx context.Context, rec models.SessionRecord) error
}

// Flush writes the current snapshot to the store. Sessions shorter than the
// minimum duration are not written. Errors are logged and dropped; the next
// periodic flush is the retry.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	total := t.m.Internal.TotalSeconds
	if float64(total) < t.timing.MinSessionDuration.Seconds() {
		t.mu.Unlock()
		t.metrics.Flush(metrics.FlushSkipped)
		t.log.Debug("Skipping flush of short session", logger.Int("total_seconds", total))
		return
	}
	if t.store == nil {
		t.mu.Unlock()
		return
	}
	data := t.m.ToLogData()
	rec := models.SessionRecord{
		SessionID: t.m.SessionID,
		UserID:    cloneID(t.m.UserID),
		UpdatedAt: t.sched.Now().UTC(),
	}
	t.mu.Unlock()

	payload, err := json.Marshal(data)
	if err != nil {
		t.metrics.Flush(metrics.FlushError)
		t.log.Error("Failed to encode session snapshot", logger.Error(err))
		return
	}
	rec.LogData = payload

	if err := t.store.UpsertSession(ctx, rec); err != nil {
		t.metrics.Flush(metrics.FlushError)
		t.log.Warn("Failed to flush session", logger.Error(err))
		return
	}
	t.metrics.Flush(metrics.FlushOK)
}

func (t *Tracker) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), t.ioTimeout)
	defer cancel()
	t.Flush(ctx)
}
