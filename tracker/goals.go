package tracker

import (
	"context"

	"mabletask/tracker/logger"
	"mabletask/tracker/models"
)

// GoldGoal is the classification goal fired when a session qualifies.
const GoldGoal = "Gold_User_Tier_1"

// GoalReporter forwards a fired goal to an external analytics system.
type GoalReporter interface {
	ReportGoal(ctx context.Context, goal models.GoalEvent) error
}

// checkGoals evaluates the gold rules once. After the goal fires the rule
// timer is stopped, since a goal fires at most once per session.
func (t *Tracker) checkGoals() {
	t.mu.Lock()
	if t.stopped || t.m.Internal.HasGoal(GoldGoal) {
		t.mu.Unlock()
		return
	}

	t.metrics.RuleEvaluated()
	if !t.engine.Evaluate(t.m) {
		t.mu.Unlock()
		return
	}

	t.m.Internal.GoalsReached = append(t.m.Internal.GoalsReached, GoldGoal)
	if t.ruleTimer != nil {
		t.ruleTimer.Stop()
	}
	event := models.GoalEvent{
		Goal:      GoldGoal,
		SessionID: t.m.SessionID,
		UserID:    cloneID(t.m.UserID),
		CounterID: t.settings.ExternalCounterID,
		PagePath:  t.currentPage(),
		Referrer:  t.env.Referrer,
		FiredAt:   t.sched.Now(),
	}
	activeSeconds := t.m.Internal.ActiveSeconds
	rulesUsed := t.engine.RuleCount()
	t.mu.Unlock()

	t.log.Info("Gold goal reached",
		logger.Int("active_seconds", activeSeconds),
		logger.Int("rules", rulesUsed),
	)
	t.metrics.GoalFired()

	if t.reporter != nil {
		t.sched.Go(func() { t.reportGoal(event) })
	}
	t.sched.Go(t.flushWithTimeout)
}

func (t *Tracker) reportGoal(event models.GoalEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), t.ioTimeout)
	defer cancel()

	if err := t.reporter.ReportGoal(ctx, event); err != nil {
		t.metrics.GoalReportFailed()
		t.log.Warn("Failed to report goal",
			logger.String("goal", event.Goal),
			logger.Error(err),
		)
	}
}

// currentPage must be called with t.mu held.
func (t *Tracker) currentPage() string {
	if n := len(t.m.Internal.PageHistory); n > 0 {
		return t.m.Internal.PageHistory[n-1].Path
	}
	return ""
}
