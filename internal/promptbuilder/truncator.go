package promptbuilder

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/projectdavid/orchestrator/pkg/models"
)

// TokenCounter counts prompt tokens for one piece of text.
type TokenCounter interface {
	Count(text string) int
}

// Truncator enforces the context budget: given budget B = window × threshold
// it drops the oldest non-system messages until the prompt fits, then merges
// consecutive same-role messages.
type Truncator struct {
	counter TokenCounter
	budget  int
}

// perMessageOverhead approximates the wire framing tokens per message.
const perMessageOverhead = 4

// NewTruncator creates a Truncator with an explicit counter, for embedders
// and tests that supply their own tokenizer.
func NewTruncator(counter TokenCounter, maxContextWindow int, threshold float64) *Truncator {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	if maxContextWindow <= 0 {
		maxContextWindow = 8192
	}
	return &Truncator{counter: counter, budget: int(float64(maxContextWindow) * threshold)}
}

// NewTiktokenTruncator creates a Truncator counting with the model's BPE
// encoding, falling back to cl100k_base when the model is unknown.
func NewTiktokenTruncator(model string, maxContextWindow int, threshold float64) *Truncator {
	return NewTruncator(&tiktokenCounter{model: model}, maxContextWindow, threshold)
}

// Truncate applies the budget. System messages are never dropped.
func (t *Truncator) Truncate(msgs []models.Message) []models.Message {
	counts := make([]int, len(msgs))
	total := 0
	for i, m := range msgs {
		counts[i] = t.counter.Count(m.Content) + perMessageOverhead
		total += counts[i]
	}

	kept := make([]bool, len(msgs))
	for i := range kept {
		kept[i] = true
	}
	// Oldest non-system first: indexes ascend in time order.
	for i := 0; total > t.budget && i < len(msgs); i++ {
		if msgs[i].Role == models.RoleSystem {
			continue
		}
		kept[i] = false
		total -= counts[i]
	}

	out := make([]models.Message, 0, len(msgs))
	for i, m := range msgs {
		if kept[i] {
			out = append(out, m)
		}
	}
	return mergeConsecutive(out)
}

// mergeConsecutive newline-joins adjacent same-role messages. Messages that
// carry tool-call structure keep their own row so call linkage survives.
func mergeConsecutive(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Role == m.Role && mergeable(*prev) && mergeable(m) {
				if prev.Content == "" {
					prev.Content = m.Content
				} else if m.Content != "" {
					prev.Content += "\n" + m.Content
				}
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func mergeable(m models.Message) bool {
	return len(m.ToolCalls) == 0 && m.ToolCallID == ""
}

// tiktokenCounter lazily loads the encoding on first use; loading can pull
// the BPE ranks over the network, so it must not happen at construction.
type tiktokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		if c.model != "" {
			if enc, err := tiktoken.EncodingForModel(c.model); err == nil {
				c.enc = enc
				return
			}
		}
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		// Tokenizer unavailable: approximate at four bytes per token so the
		// budget still binds.
		return len(text)/4 + 1
	}
	return len(c.enc.Encode(text, nil, nil))
}

var _ TokenCounter = (*tiktokenCounter)(nil)
