package usecase

import (
	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
)

type agentTurn struct {
	response    string
	observation string
	summary     string
	collapsed   bool
}

// agentHistory is the prompt transcript of one run. The system prompt and
// the original query are never trimmed.
type agentHistory struct {
	system  string
	query   string
	turns   []agentTurn
	counter ports.TokenCounter
	budget  int
}

func newAgentHistory(system, query string, counter ports.TokenCounter, budget int) *agentHistory {
	return &agentHistory{system: system, query: query, counter: counter, budget: budget}
}

func (h *agentHistory) add(response, observation, summary string) {
	h.turns = append(h.turns, agentTurn{response: response, observation: observation, summary: summary})
}

func (h *agentHistory) messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, 2+2*len(h.turns))
	out = append(out,
		domain.ChatMessage{Role: domain.RoleSystem, Content: h.system},
		domain.ChatMessage{Role: domain.RoleUser, Content: h.query},
	)
	for _, turn := range h.turns {
		observation := turn.observation
		if turn.collapsed {
			observation = turn.summary
		}
		out = append(out,
			domain.ChatMessage{Role: domain.RoleAssistant, Content: turn.response},
			domain.ChatMessage{Role: domain.RoleUser, Content: observation},
		)
	}
	return out
}

func (h *agentHistory) tokens() int {
	total := 0
	for _, msg := range h.messages() {
		total += h.count(msg.Content)
	}
	return total
}

// trim collapses the oldest observations to their summaries, then drops the
// oldest turns, until the transcript fits the budget.
func (h *agentHistory) trim() (collapsed, dropped int) {
	if h.budget <= 0 {
		return 0, 0
	}
	for h.tokens() > h.budget {
		if i := h.oldestExpanded(); i >= 0 {
			h.turns[i].collapsed = true
			collapsed++
			continue
		}
		if len(h.turns) == 0 {
			break
		}
		h.turns = h.turns[1:]
		dropped++
	}
	return collapsed, dropped
}

func (h *agentHistory) oldestExpanded() int {
	for i, turn := range h.turns {
		if !turn.collapsed {
			return i
		}
	}
	return -1
}

func (h *agentHistory) count(text string) int {
	if h.counter == nil {
		return estimateTokens(text)
	}
	return h.counter.Count(text)
}
