package pipeline

import (
	"context"

	agentctx "github.com/agentloom/turnengine/internal/agent/context"
	"github.com/agentloom/turnengine/pkg/models"
)

// HistoryPacker is the subset of *agentctx.Packer that ContextBuilding
// depends on.
type HistoryPacker interface {
	Pack(history []*models.Message, incoming *models.Message, summary *models.Message) ([]*models.Message, error)
}

// MemoryRecaller fetches the bounded memory pack text for a precedence-
// ordered list of scopes. It is the read side of MemoryWriter: 20
// ContextBuilding reads, 50 MemoryPersist writes, and the ordering
// invariant (read strictly precedes write) holds because they are
// different systems at different pipeline orders.
//
// scopes is ordered highest-precedence first; the implementation should
// retrieve each scope in order and let earlier scopes win the token budget,
// so a GOAL_RUN's task→goal→session→global precedence (spec §4.9) falls out
// of the order scopesForTurn builds rather than needing its own logic here.
type MemoryRecaller interface {
	Recall(ctx context.Context, scopes []string, maxTokens int) (string, error)
}

// AutoContextProvider supplies the goal/task/diary context an auto-mode
// turn's system prompt should carry (spec §4.3: "if auto-mode, inject
// goal/task/diary context").
type AutoContextProvider interface {
	AutoContextFor(ctx context.Context, tc *models.TurnContext) (string, error)
}

// defaultMemoryPackTokens bounds the memory pack when MaxMemoryTokens is unset.
const defaultMemoryPackTokens = 1000

// ContextBuilding is order-20: it packs session history, the pending
// summary, and the incoming message into the window that will actually be
// sent to the model, queries MemoryStore for a memory pack bounded by a
// token budget, and assembles the system prompt from the active skill's
// instructions plus that pack plus any RAG context gathered upstream plus,
// for auto-mode turns, goal/task/diary context.
type ContextBuilding struct {
	alwaysProcess
	Packer          HistoryPacker
	PromptForSkill  func(skill string) string
	Recaller        MemoryRecaller
	AutoProvider    AutoContextProvider
	MaxMemoryTokens int
}

func (ContextBuilding) Name() string { return "ContextBuilding" }
func (ContextBuilding) Order() int   { return 20 }

func (c ContextBuilding) Process(ctx context.Context, tc *models.TurnContext) error {
	if c.Packer != nil {
		packed, err := c.Packer.Pack(tc.History, tc.Inbound, tc.Summary)
		if err != nil {
			return err
		}
		tc.PackedHistory = packed
	} else {
		tc.PackedHistory = tc.History
	}

	if c.Recaller != nil {
		maxTokens := c.MaxMemoryTokens
		if maxTokens <= 0 {
			maxTokens = defaultMemoryPackTokens
		}
		pack, err := c.Recaller.Recall(ctx, scopesForTurn(tc), maxTokens)
		if err != nil {
			return err
		}
		tc.MemoryPack = pack
	}

	var autoContext string
	if c.AutoProvider != nil && tc.AutoContext != nil && tc.AutoContext.AutoMode {
		text, err := c.AutoProvider.AutoContextFor(ctx, tc)
		if err != nil {
			return err
		}
		autoContext = text
	}

	prompt := ""
	if c.PromptForSkill != nil {
		prompt = c.PromptForSkill(tc.ActiveSkill)
	}
	if tc.MemoryPack != "" {
		prompt += "\n\n" + tc.MemoryPack
	}
	if tc.RagContext != "" {
		prompt += "\n\n" + tc.RagContext
	}
	if autoContext != "" {
		prompt += "\n\n" + autoContext
	}
	if tc.AutoContext != nil && tc.AutoContext.SystemPromptOverride != "" {
		prompt += "\n\n" + tc.AutoContext.SystemPromptOverride
	}
	tc.SystemPrompt = prompt
	return nil
}

// scopesForTurn builds the precedence-ordered scope list a turn's memory
// recall should query, per spec §4.9: GOAL_RUN is task→goal→session→global,
// TASK_RUN is task→session→global, and a plain turn is just its session (or
// global with no session at all).
func scopesForTurn(tc *models.TurnContext) []string {
	sessionScope := ""
	if tc.Session != nil {
		sessionScope = models.SessionScope(tc.Session.ChannelID, tc.Session.Key)
	}

	auto := tc.AutoContext
	if auto == nil || !auto.AutoMode {
		if sessionScope != "" {
			return []string{sessionScope}
		}
		return []string{models.ScopeGlobal}
	}

	var scopes []string
	if auto.TaskID != "" {
		scopes = append(scopes, models.TaskScope(auto.TaskID))
	}
	if auto.RunKind == models.RunKindGoal && auto.GoalID != "" && tc.Session != nil {
		scopes = append(scopes, models.GoalScope(tc.Session.ChannelID, tc.Session.Key, auto.GoalID))
	}
	if sessionScope != "" {
		scopes = append(scopes, sessionScope)
	}
	scopes = append(scopes, models.ScopeGlobal)
	return scopes
}

var _ HistoryPacker = (*agentctx.Packer)(nil)
