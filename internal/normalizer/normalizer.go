// Package normalizer converts provider stream chunks into the canonical
// event sequence. Models hide reasoning and tool calls behind inline tags
// (<think>, <fc>, <plan>) or Harmony channel markers (<|channel|>analysis,
// <|message|>, <|call|>); the normalizer strips every such marker so that no
// tag byte ever reaches a content event.
//
// The normalizer is a pure function of its input sequence: no I/O, no
// clocks. Malformed input degrades to best-effort content events, never an
// error.
package normalizer

import (
	"regexp"
	"strings"

	"github.com/projectdavid/orchestrator/internal/providers"
	"github.com/projectdavid/orchestrator/pkg/models"
)

type state int

const (
	stateContent state = iota
	stateThink
	statePlan
	stateFC
	stateChannelHeader
	stateChannelAnalysis
	stateChannelCommentary
	stateChannelFinal
)

// Tag strings. Matching is longest-first, so <|channel|>analysis never loses
// to a shorter marker with the same prefix.
const (
	tagThink      = "<think>"
	tagThinkEnd   = "</think>"
	tagPlan       = "<plan>"
	tagPlanEnd    = "</plan>"
	tagFC         = "<fc>"
	tagFCEnd      = "</fc>"
	tagChannel    = "<|channel|>"
	tagMessage    = "<|message|>"
	tagCall       = "<|call|>"
	tagEnd        = "<|end|>"
	tagReturn     = "<|return|>"
	tagStartAsst  = "<|start|>assistant"
	tagStartPlain = "<|start|>"
)

var commentaryTarget = regexp.MustCompile(`to=functions\.([A-Za-z0-9_.-]+)`)

// nativeCall accumulates one tool call streamed as per-index deltas.
type nativeCall struct {
	id   string
	name string
	args strings.Builder
}

// Normalizer is the per-stream tag state machine. One Normalizer serves one
// provider stream; it is not safe for concurrent use.
type Normalizer struct {
	st  state
	buf string

	header strings.Builder

	// Commentary-channel tool call in flight.
	chanTool string
	chanArgs strings.Builder

	native      map[int]*nativeCall
	nativeOrder []int
}

// New creates a Normalizer in the content state.
func New() *Normalizer {
	return &Normalizer{native: make(map[int]*nativeCall)}
}

// Feed consumes one provider chunk and returns the canonical events it
// resolves. Text held back as a possible partial tag surfaces on a later
// Feed or at Flush.
func (n *Normalizer) Feed(chunk providers.Chunk) []models.StreamEvent {
	var out []models.StreamEvent

	if chunk.Err != nil {
		out = n.flushInto(out)
		return append(out, models.ErrorEvent("", chunk.Err.Error()))
	}

	// Provider-native reasoning bypasses the tag parser for the whole chunk.
	// Tool deltas riding on the same chunk are still accumulated.
	if chunk.ReasoningContent != "" {
		out = append(out, models.ReasoningEvent(chunk.ReasoningContent))
		if chunk.Content != "" {
			out = append(out, models.ContentEvent(chunk.Content))
		}
		if len(chunk.ToolCalls) > 0 {
			out = n.feedNative(chunk.ToolCalls, out)
		}
		return n.finishReason(chunk.FinishReason, out)
	}

	if len(chunk.ToolCalls) > 0 {
		out = n.feedNative(chunk.ToolCalls, out)
	} else if chunk.Content != "" {
		out = n.scan(chunk.Content, out)
	}
	return n.finishReason(chunk.FinishReason, out)
}

// Flush ends the stream: remaining buffered text surfaces as the current
// state's event, and any native tool calls still pending are finalized.
func (n *Normalizer) Flush() []models.StreamEvent {
	return n.flushInto(nil)
}

func (n *Normalizer) flushInto(out []models.StreamEvent) []models.StreamEvent {
	if n.buf != "" {
		out = n.emitText(n.buf, out)
		n.buf = ""
	}
	out = n.finalizeNative(out)
	return out
}

func (n *Normalizer) finishReason(reason string, out []models.StreamEvent) []models.StreamEvent {
	if reason == "tool_calls" {
		out = n.finalizeNative(out)
	}
	return out
}

func (n *Normalizer) feedNative(deltas []providers.ToolCallDelta, out []models.StreamEvent) []models.StreamEvent {
	for _, d := range deltas {
		call, ok := n.native[d.Index]
		if !ok {
			call = &nativeCall{}
			n.native[d.Index] = call
			n.nativeOrder = append(n.nativeOrder, d.Index)
		}
		if d.ID != "" && call.id == "" {
			call.id = d.ID
		}
		if d.Name != "" && call.name == "" {
			call.name = d.Name
			out = append(out, models.StreamEvent{Type: models.EventToolName, ToolName: d.Name})
		}
		if d.ArgumentsDelta != "" {
			call.args.WriteString(d.ArgumentsDelta)
			out = append(out, models.StreamEvent{Type: models.EventCallArguments, Content: d.ArgumentsDelta})
		}
	}
	return out
}

func (n *Normalizer) finalizeNative(out []models.StreamEvent) []models.StreamEvent {
	for _, idx := range n.nativeOrder {
		call := n.native[idx]
		if call.name == "" {
			continue
		}
		out = append(out, models.StreamEvent{
			Type:     models.EventToolCall,
			ToolCall: &models.ToolCallPayload{Name: call.name, Arguments: call.args.String()},
		})
	}
	n.native = make(map[int]*nativeCall)
	n.nativeOrder = nil
	return out
}

// scan pushes text through the tag state machine.
func (n *Normalizer) scan(text string, out []models.StreamEvent) []models.StreamEvent {
	n.buf += text
	for {
		i := strings.IndexByte(n.buf, '<')
		if i < 0 {
			if n.buf != "" {
				out = n.emitText(n.buf, out)
				n.buf = ""
			}
			return out
		}
		if i > 0 {
			out = n.emitText(n.buf[:i], out)
			n.buf = n.buf[i:]
		}
		tag, partial := n.matchTag()
		if partial {
			// Possible tag split across chunks: hold the tail.
			return out
		}
		if tag == "" {
			out = n.emitText("<", out)
			n.buf = n.buf[1:]
			continue
		}
		n.buf = n.buf[len(tag):]
		out = n.transition(tag, out)
	}
}

// matchTag resolves the tag at the head of the buffer. It returns the
// matched tag, or partial=true when the buffer is a proper prefix of some
// candidate and more bytes are needed.
func (n *Normalizer) matchTag() (tag string, partial bool) {
	var match string
	for _, cand := range n.candidates() {
		if strings.HasPrefix(n.buf, cand) {
			if len(cand) > len(match) {
				match = cand
			}
			continue
		}
		if len(n.buf) < len(cand) && strings.HasPrefix(cand, n.buf) {
			partial = true
		}
	}
	if match == "" {
		return "", partial
	}
	// The buffer may still grow into a longer candidate that shares this
	// prefix (<|start|> vs <|start|>assistant): hold until disambiguated.
	for _, cand := range n.candidates() {
		if len(cand) > len(match) && len(n.buf) < len(cand) && strings.HasPrefix(cand, n.buf) {
			return "", true
		}
	}
	return match, false
}

// candidates lists the tags recognizable in the current state, longest
// first. Inside a span only its exact closer (plus channel terminators for
// channel states) is live, so an opener inside <think> stays literal text.
func (n *Normalizer) candidates() []string {
	switch n.st {
	case stateThink:
		return []string{tagThinkEnd}
	case statePlan:
		return []string{tagPlanEnd}
	case stateFC:
		return []string{tagFCEnd}
	case stateChannelHeader:
		return []string{tagMessage}
	case stateChannelAnalysis, stateChannelFinal:
		return []string{tagStartAsst, tagChannel, tagReturn, tagStartPlain, tagEnd}
	case stateChannelCommentary:
		return []string{tagStartAsst, tagChannel, tagReturn, tagStartPlain, tagCall, tagEnd}
	default:
		return []string{tagStartAsst, tagChannel, tagMessage, tagReturn, tagStartPlain, tagThink, tagPlan, tagEnd, tagFC}
	}
}

func (n *Normalizer) transition(tag string, out []models.StreamEvent) []models.StreamEvent {
	switch tag {
	case tagThink:
		n.st = stateThink
	case tagThinkEnd, tagPlanEnd:
		n.st = stateContent
	case tagPlan:
		n.st = statePlan
	case tagFC:
		n.st = stateFC
	case tagFCEnd:
		n.st = stateContent
	case tagChannel:
		n.header.Reset()
		n.st = stateChannelHeader
	case tagMessage:
		if n.st == stateChannelHeader {
			out = n.enterChannel(out)
		}
		// A stray <|message|> outside a header is scrubbed.
	case tagCall:
		if n.st == stateChannelCommentary && n.chanTool != "" {
			out = append(out, models.StreamEvent{
				Type:     models.EventToolCall,
				ToolCall: &models.ToolCallPayload{Name: n.chanTool, Arguments: n.chanArgs.String()},
			})
		}
		n.chanTool = ""
		n.chanArgs.Reset()
		n.st = stateContent
	case tagEnd, tagReturn:
		n.st = stateContent
	case tagStartAsst, tagStartPlain:
		// Transition garbage between channel turns; always scrubbed.
	}
	return out
}

// enterChannel routes the collected header into a channel body state.
func (n *Normalizer) enterChannel(out []models.StreamEvent) []models.StreamEvent {
	header := n.header.String()
	n.header.Reset()
	switch {
	case strings.Contains(header, "analysis"):
		n.st = stateChannelAnalysis
	case strings.Contains(header, "commentary"):
		n.st = stateChannelCommentary
		n.chanTool = ""
		n.chanArgs.Reset()
		if m := commentaryTarget.FindStringSubmatch(header); m != nil {
			n.chanTool = m[1]
			out = append(out, models.StreamEvent{Type: models.EventToolName, ToolName: m[1]})
		}
	case strings.Contains(header, "final"):
		n.st = stateChannelFinal
	default:
		// Unknown channel: pass the body through visibly rather than drop it.
		n.st = stateContent
	}
	return out
}

// emitText routes resolved text into the sink the current state dictates.
func (n *Normalizer) emitText(text string, out []models.StreamEvent) []models.StreamEvent {
	switch n.st {
	case stateThink, statePlan, stateChannelAnalysis:
		return append(out, models.ReasoningEvent(text))
	case stateFC:
		return append(out, models.StreamEvent{Type: models.EventCallArguments, Content: text})
	case stateChannelCommentary:
		n.chanArgs.WriteString(text)
		return append(out, models.StreamEvent{Type: models.EventCallArguments, Content: text})
	case stateChannelHeader:
		n.header.WriteString(text)
		return out
	default:
		return append(out, models.ContentEvent(text))
	}
}
