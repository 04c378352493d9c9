// Package orchestrator runs each conversation's turns one at a time, in
// arrival order, while letting independent conversations run concurrently —
// generalizing the gateway's single global semaphore-gated dispatch loop
// into a per-conversation queue.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentloom/turnengine/internal/pipeline"
	"github.com/agentloom/turnengine/pkg/models"
)

// DefaultTurnDeadline bounds how long a single turn may run before it is
// cancelled, absent a more specific deadline from the caller.
const DefaultTurnDeadline = time.Hour

// idleTimeout is how long a conversation's worker goroutine waits for a new
// turn before it exits; the queue is recreated lazily on the next turn.
const idleTimeout = 5 * time.Minute

type turnJob struct {
	ctx    context.Context
	tc     *models.TurnContext
	result chan turnResult
}

type turnResult struct {
	outcome *models.RoutingOutcome
	err     error
}

type conversationQueue struct {
	jobs chan turnJob
}

// TurnOrchestrator serializes turns within a conversation and runs each
// through the Pipeline.
type TurnOrchestrator struct {
	mu       sync.Mutex
	queues   map[string]*conversationQueue
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	deadline time.Duration
}

// New builds a TurnOrchestrator. A zero deadline falls back to
// DefaultTurnDeadline.
func New(p *pipeline.Pipeline, deadline time.Duration, logger *slog.Logger) *TurnOrchestrator {
	if deadline <= 0 {
		deadline = DefaultTurnDeadline
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnOrchestrator{
		queues:   make(map[string]*conversationQueue),
		pipeline: p,
		logger:   logger,
		deadline: deadline,
	}
}

// conversationKey identifies the single-flight queue a turn belongs to.
func conversationKey(channel models.ChannelType, key string) string {
	return fmt.Sprintf("%s|%s", channel, key)
}

// ProcessMessage enqueues tc onto its conversation's queue and blocks until
// the turn completes or ctx is cancelled, returning the resulting
// RoutingOutcome.
func (o *TurnOrchestrator) ProcessMessage(ctx context.Context, tc *models.TurnContext) (*models.RoutingOutcome, error) {
	if tc.Session == nil {
		return nil, fmt.Errorf("orchestrator: turn context has no session")
	}
	key := conversationKey(tc.Session.Channel, tc.Session.Key)
	queue := o.queueFor(key)

	turnCtx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	job := turnJob{ctx: turnCtx, tc: tc, result: make(chan turnResult, 1)}
	select {
	case queue.jobs <- job:
	case <-turnCtx.Done():
		return nil, turnCtx.Err()
	}

	select {
	case res := <-job.result:
		return res.outcome, res.err
	case <-turnCtx.Done():
		return nil, turnCtx.Err()
	}
}

// queueFor returns the conversation's queue, starting a new worker if none
// is currently running for this key.
func (o *TurnOrchestrator) queueFor(key string) *conversationQueue {
	o.mu.Lock()
	defer o.mu.Unlock()

	if q, ok := o.queues[key]; ok {
		return q
	}
	q := &conversationQueue{jobs: make(chan turnJob, 64)}
	o.queues[key] = q
	go o.runQueue(key, q)
	return q
}

func (o *TurnOrchestrator) runQueue(key string, q *conversationQueue) {
	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	for {
		select {
		case job := <-q.jobs:
			if !timer.Stop() {
				<-timer.C
			}
			o.runJob(job)
			timer.Reset(idleTimeout)
		case <-timer.C:
			o.mu.Lock()
			// Only remove the queue if nothing raced in between the timer
			// firing and acquiring the lock.
			select {
			case job := <-q.jobs:
				o.mu.Unlock()
				o.runJob(job)
				timer.Reset(idleTimeout)
				continue
			default:
			}
			delete(o.queues, key)
			o.mu.Unlock()
			return
		}
	}
}

func (o *TurnOrchestrator) runJob(job turnJob) {
	err := o.pipeline.Run(job.ctx, job.tc)
	select {
	case job.result <- turnResult{outcome: job.tc.RoutingOutcome, err: err}:
	default:
	}
}
