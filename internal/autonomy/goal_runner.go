package autonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/agentloom/turnengine/internal/channels"
	"github.com/agentloom/turnengine/internal/sessions"
	"github.com/agentloom/turnengine/pkg/models"
)

// GoalNotifier delivers a milestone notification to the channel a goal was
// enabled from, the way channels.ChannelPort.SendMessage delivers any other
// outbound turn result.
type GoalNotifier interface {
	NotifyMilestone(ctx context.Context, goal *models.Goal, entry models.DiaryEntry) error
}

// ChannelNotifier is a GoalNotifier that sends milestone text through the
// channel registry's outbound adapter for the goal's channel, the same
// registry channels.Registry.GetOutbound exposes to the Router.
type ChannelNotifier struct {
	Registry *channels.Registry
}

// NewChannelNotifier builds a GoalNotifier backed by a channel registry.
func NewChannelNotifier(registry *channels.Registry) *ChannelNotifier {
	return &ChannelNotifier{Registry: registry}
}

func (n *ChannelNotifier) NotifyMilestone(ctx context.Context, goal *models.Goal, entry models.DiaryEntry) error {
	outbound, ok := n.Registry.GetOutbound(goal.Channel)
	if !ok {
		return fmt.Errorf("autonomy: no outbound adapter registered for channel %q", goal.Channel)
	}
	port := channels.NewChannelPort(goal.Channel, outbound)
	text := fmt.Sprintf("Goal %q milestone: %s", goal.Title, entry.Summary)
	return port.SendMessage(ctx, goal.ChannelID, text)
}

// GoalRunnerConfig configures the goal-driven tick loop.
type GoalRunnerConfig struct {
	// TickInterval is how often Tick runs. Default 15 minutes (spec §4.9).
	TickInterval time.Duration

	// Watchdog bounds a single tick's dispatch; an overrun is logged and
	// the loop proceeds to the next scheduled tick rather than canceling
	// in-progress work beyond that point. Default 5 minutes (spec §4.9).
	Watchdog time.Duration

	Logger *slog.Logger
}

func (c GoalRunnerConfig) withDefaults() GoalRunnerConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = 15 * time.Minute
	}
	if c.Watchdog <= 0 {
		c.Watchdog = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "goal-runner")
	}
	return c
}

// GoalRunner implements spec §4.9's autonomous tick loop over the Goal/Task
// domain model: each tick picks the next pending task (or synthesizes a
// planning turn), dispatches a synthetic GOAL_RUN message through the turn
// orchestrator, and notifies the owning channel when the LLM signals a
// milestone via the goal-management tools.
//
// It runs alongside, not in place of, Scheduler: Scheduler drives
// cron-triggered ScheduledTasks (TASK_RUN, via AgentExecutor); GoalRunner
// drives goal-owned Tasks (GOAL_RUN) on its own interval.
type GoalRunner struct {
	goals        GoalStore
	diary        DiaryStore
	sessions     sessions.Store
	orchestrator turnRunner
	notifier     GoalNotifier
	autoEnabled  func(goal *models.Goal) bool
	config       GoalRunnerConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewGoalRunner builds a GoalRunner. autoEnabled, if non-nil, gates each
// goal individually (e.g. a per-session auto-mode toggle); nil means every
// Active goal is eligible.
func NewGoalRunner(
	goals GoalStore,
	diary DiaryStore,
	sessionStore sessions.Store,
	orchestrator turnRunner,
	notifier GoalNotifier,
	autoEnabled func(goal *models.Goal) bool,
	config GoalRunnerConfig,
) *GoalRunner {
	return &GoalRunner{
		goals:        goals,
		diary:        diary,
		sessions:     sessionStore,
		orchestrator: orchestrator,
		notifier:     notifier,
		autoEnabled:  autoEnabled,
		config:       config.withDefaults(),
	}
}

// Start runs Tick immediately, then on every TickInterval until the context
// is canceled or Stop is called.
func (r *GoalRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("autonomy: goal runner already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(runCtx)
	return nil
}

// Stop cancels the tick loop and waits for the in-flight tick to return.
func (r *GoalRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *GoalRunner) loop(ctx context.Context) {
	defer r.wg.Done()

	if err := r.Tick(ctx); err != nil {
		r.config.Logger.Error("goal runner tick failed", "error", err)
	}

	ticker := time.NewTicker(r.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.config.Logger.Error("goal runner tick failed", "error", err)
			}
		}
	}
}

// Tick implements spec §4.9 steps 2-5 for the goal domain: load active
// goals, pick work, construct a synthetic GOAL_RUN (or TASK_RUN, for a
// standalone task owned by no goal) message, and dispatch it under a
// bounded watchdog.
func (r *GoalRunner) Tick(ctx context.Context) error {
	goals, err := r.goals.ListActiveGoals(ctx)
	if err != nil {
		return fmt.Errorf("autonomy: list active goals: %w", err)
	}

	if r.autoEnabled != nil {
		filtered := goals[:0:0]
		for _, g := range goals {
			if r.autoEnabled(g) {
				filtered = append(filtered, g)
			}
		}
		goals = filtered
	}

	if len(goals) == 0 {
		return nil
	}

	goal, task, synth := SelectNextTask(goals)
	if goal == nil {
		return nil
	}

	session, err := r.sessionForGoal(ctx, goal)
	if err != nil {
		return fmt.Errorf("autonomy: resolve session for goal %s: %w", goal.ID, err)
	}

	runID := uuid.NewString()
	var taskID, content string
	if synth {
		content = fmt.Sprintf("Goal %q has no tasks yet. Plan the next concrete tasks needed to make progress.", goal.Title)
	} else {
		taskID = task.ID
		content = task.Title
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Channel:   session.Channel,
		ChannelID: session.ChannelID,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
		Metadata: map[string]any{
			"goal_id":  goal.ID,
			"task_id":  taskID,
			"run_kind": string(models.RunKindGoal),
		},
	}

	tc := &models.TurnContext{
		Session: session,
		Inbound: msg,
		AutoContext: &models.AutoContext{
			AutoMode: true,
			GoalID:   goal.ID,
			TaskID:   taskID,
			RunKind:  models.RunKindGoal,
			RunID:    runID,
		},
	}

	tickCtx, cancel := context.WithTimeout(ctx, r.config.Watchdog)
	defer cancel()

	_, err = r.orchestrator.ProcessMessage(tickCtx, tc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			r.config.Logger.Warn("goal run exceeded watchdog, proceeding to next tick",
				"goal_id", goal.ID, "task_id", taskID, "run_id", runID)
			return nil
		}
		return fmt.Errorf("autonomy: process goal run: %w", err)
	}

	r.config.Logger.Info("goal run completed",
		"goal_id", goal.ID, "task_id", taskID, "run_id", runID, "synth", synth)

	return nil
}

// sessionForGoal resolves the session the goal was enabled from, so a
// GOAL_RUN turn's memory reads/writes land in the same session scope the
// user's own turns with this goal would use.
func (r *GoalRunner) sessionForGoal(ctx context.Context, goal *models.Goal) (*models.Session, error) {
	channel := goal.Channel
	if channel == "" {
		channel = "autonomous"
	}
	channelID := goal.ChannelID
	if channelID == "" {
		channelID = goal.ID
	}

	key := goal.SessionKey
	if key == "" {
		key = sessions.SessionKey(goal.AgentID, channel, channelID)
	}

	session, err := r.sessions.GetOrCreate(ctx, key, goal.AgentID, channel, channelID)
	if err != nil {
		return nil, err
	}
	return session, nil
}
