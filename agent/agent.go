// Package agent drives the conversation loop: call the model, execute any
// requested tool calls, feed results back, and repeat up to a bounded number
// of rounds. It also owns optional plan decomposition for multi-step
// requests.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/loopkit/loopkit/history"
	"github.com/loopkit/loopkit/llm"
	"github.com/loopkit/loopkit/tools"
)

const defaultSystemPrompt = `You are a small, careful coding assistant running in a local CLI.

Rules:
- If a tool is needed, call it.
- Keep edits minimal and correct.
- Prefer apply_patch for changes; only use write_file for new files or full rewrites.
- After using tools, explain what you did briefly.

You have access to tools defined in the tool schema. Use them when helpful.
`

const finalizeSystemPrompt = `You just finished executing a multi-step plan for a user request.
You will receive the original request, the plan steps, and the result of each step.
Reply with a concise summary of what was done, written for the user. Do not repeat the steps verbatim.
`

const roundLimitMessage = "(stopped: too many tool rounds; try a smaller request)"

// ErrPlanPending signals that a plan was generated and needs caller approval
// before execution. Approve or cancel, then re-invoke Chat with the same
// request.
var ErrPlanPending = errors.New("plan pending approval")

// errRoundLimit signals that a sub-turn ran out of tool rounds. Callers turn
// it into roundLimitMessage; inside a plan it must also stop step advancement.
var errRoundLimit = errors.New("tool round limit reached")

// ChatClient is the model call the loop depends on.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema) (llm.Message, error)
}

// Config controls loop behavior. The model choice lives on the llm client,
// not here.
type Config struct {
	MaxToolRounds    int
	Debug            bool
	EnablePlanning   bool
	AutoApprovePlans bool
}

// Agent owns one conversation: the message list, the tool registry, and an
// optional active plan.
type Agent struct {
	history *history.Store
	tools   *tools.Registry
	client  ChatClient
	cfg     Config
	log     zerolog.Logger

	messages  []llm.Message
	plan      *Plan
	planReq   string
	stepTexts []string

	// OnStepComplete, when set, is invoked after each plan step finishes.
	OnStepComplete func(step Step, index, total int)
}

// New creates an Agent. MaxToolRounds defaults to 8 when unset.
func New(hist *history.Store, registry *tools.Registry, client ChatClient, cfg Config, log zerolog.Logger) *Agent {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 8
	}
	a := &Agent{
		history: hist,
		tools:   registry,
		client:  client,
		cfg:     cfg,
		log:     log,
	}
	a.Reset()
	return a
}

// Reset drops the conversation back to just the system prompt and discards
// any active plan.
func (a *Agent) Reset() {
	a.messages = []llm.Message{llm.SystemMessage(defaultSystemPrompt)}
	a.plan = nil
	a.planReq = ""
	a.stepTexts = nil
}

// Messages returns the live conversation slice.
func (a *Agent) Messages() []llm.Message {
	return a.messages
}

// DumpContext renders the conversation as indented JSON.
func (a *Agent) DumpContext() string {
	data, err := json.MarshalIndent(a.messages, "", "  ")
	if err != nil {
		return fmt.Sprintf("(context unavailable: %v)", err)
	}
	return string(data)
}

// DumpTools lists the tool palette, either as "- name: description" lines or
// as indented JSON schemas.
func (a *Agent) DumpTools(asJSON bool) string {
	schemas := a.tools.Schemas()
	if asJSON {
		data, err := json.MarshalIndent(schemas, "", "  ")
		if err != nil {
			return fmt.Sprintf("(tools unavailable: %v)", err)
		}
		return string(data)
	}
	var lines []string
	for _, s := range schemas {
		lines = append(lines, fmt.Sprintf("- %s: %s", s.Name, s.Description))
	}
	return strings.Join(lines, "\n")
}

// PendingPlan returns the generated-but-unapproved plan, or nil.
func (a *Agent) PendingPlan() *Plan {
	if a.plan != nil && !a.plan.Approved {
		return a.plan
	}
	return nil
}

// ApprovePlan marks the pending plan approved. The caller then re-invokes
// Chat with the original request to execute it.
func (a *Agent) ApprovePlan() {
	if a.plan != nil {
		a.plan.Approved = true
	}
}

// CancelPlan discards the pending plan; the next Chat proceeds unplanned.
func (a *Agent) CancelPlan() {
	a.plan = nil
	a.planReq = ""
	a.stepTexts = nil
}

// Chat handles one user message end to end. When planning produces a plan
// that has not been approved, it returns ErrPlanPending without consuming a
// model round.
func (a *Agent) Chat(ctx context.Context, userText string) (string, error) {
	if a.cfg.EnablePlanning && a.plan == nil {
		needsPlan, steps, reasoning := shouldPlan(ctx, a.client, userText, true)
		a.log.Debug().Bool("needs_plan", needsPlan).Str("reasoning", reasoning).Msg("plan decision")
		if needsPlan && len(steps) > 0 {
			a.plan = NewPlan(steps)
			a.planReq = userText
			a.stepTexts = nil
			if a.cfg.AutoApprovePlans {
				a.plan.Approved = true
			} else {
				return "", ErrPlanPending
			}
		}
	}
	if a.plan != nil && !a.plan.Approved {
		return "", ErrPlanPending
	}

	// Logged only once a sub-turn will actually run: the approval round
	// trip re-invokes Chat with the same text.
	if err := a.history.Append(map[string]any{"type": "user", "text": userText}); err != nil {
		a.log.Warn().Err(err).Msg("history append failed")
	}

	if a.plan != nil {
		return a.runPlan(ctx, userText)
	}

	text, err := a.runRounds(ctx, userText)
	if errors.Is(err, errRoundLimit) {
		a.recordAssistant(roundLimitMessage)
		return roundLimitMessage, nil
	}
	if err != nil {
		return "", err
	}
	a.recordAssistant(text)
	return text, nil
}

// runPlan executes the approved plan: one sub-turn per step, then a
// finalization pass that synthesizes the user-facing summary.
func (a *Agent) runPlan(ctx context.Context, userText string) (string, error) {
	plan := a.plan
	total := len(plan.Steps)
	input := userText

	for !plan.IsComplete() {
		text, err := a.runRounds(ctx, input)
		if errors.Is(err, errRoundLimit) {
			// The step never finished: leave the cursor in place and hand
			// control back instead of advancing or finalizing.
			a.recordAssistant(roundLimitMessage)
			return roundLimitMessage, nil
		}
		if err != nil {
			return "", err
		}
		a.stepTexts = append(a.stepTexts, text)

		index := plan.Current
		completed := *plan.CurrentStep()
		plan.MarkCurrentComplete()
		completed.Completed = true
		if a.OnStepComplete != nil {
			a.OnStepComplete(completed, index, total)
		}

		if next := plan.CurrentStep(); next != nil {
			input = "Continue with next step: " + next.Description
		}
	}

	summary := a.finalizePlan(ctx)
	a.plan = nil
	a.planReq = ""
	a.recordAssistant(summary)
	return summary, nil
}

// finalizePlan asks the model for a concise summary of the executed plan.
// Any failure falls back to the last sub-turn's raw text.
func (a *Agent) finalizePlan(ctx context.Context) string {
	fallback := ""
	if len(a.stepTexts) > 0 {
		fallback = a.stepTexts[len(a.stepTexts)-1]
	}

	var descriptions []string
	for _, s := range a.plan.Steps {
		descriptions = append(descriptions, s.Description)
	}
	payload, err := json.Marshal(map[string]any{
		"request": a.planReq,
		"steps":   descriptions,
		"results": a.stepTexts,
	})
	if err != nil {
		return fallback
	}

	resp, err := a.client.Chat(ctx, []llm.Message{
		llm.SystemMessage(finalizeSystemPrompt),
		llm.UserMessage(string(payload)),
	}, nil)
	if err != nil {
		a.log.Debug().Err(err).Msg("plan finalization failed")
		return fallback
	}
	if text := strings.TrimSpace(resp.Text()); text != "" {
		return text
	}
	return fallback
}

// runRounds is one sub-turn: append the user text, then alternate model
// calls and tool execution until the model answers without tool calls.
// Exhausting the round budget returns errRoundLimit, never a normal answer.
func (a *Agent) runRounds(ctx context.Context, userText string) (string, error) {
	a.messages = append(a.messages, llm.UserMessage(userText))

	for round := 0; round < a.cfg.MaxToolRounds; round++ {
		if a.cfg.Debug {
			a.debugRound(round)
		}

		resp, err := a.client.Chat(ctx, a.messages, a.tools.Schemas())
		if err != nil {
			return "", err
		}
		a.messages = append(a.messages, resp)

		if a.cfg.Debug {
			if err := a.history.Append(map[string]any{"type": "debug", "llm_raw": resp}); err != nil {
				a.log.Warn().Err(err).Msg("history append failed")
			}
			a.debugResponse(resp)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text(), nil
		}

		for _, call := range resp.ToolCalls {
			args := parseToolArgs(call.Arguments)

			a.log.Debug().Str("tool", call.Name).Str("args", truncate(call.Arguments, 200)).Msg("tool call")
			if err := a.history.Append(map[string]any{"type": "tool_call", "name": call.Name, "args": args}); err != nil {
				a.log.Warn().Err(err).Msg("history append failed")
			}

			result := a.tools.Execute(call.Name, args)

			if err := a.history.Append(map[string]any{"type": "tool_result", "name": call.Name, "result": result}); err != nil {
				a.log.Warn().Err(err).Msg("history append failed")
			}
			resultJSON, err := json.Marshal(result)
			if err != nil {
				resultJSON = []byte(fmt.Sprintf(`{"ok":false,"error":%q}`, err.Error()))
			}
			if a.cfg.Debug {
				a.log.Debug().Str("tool", call.Name).Str("result", truncate(string(resultJSON), 2000)).Msg("tool result")
			}
			a.messages = append(a.messages, llm.ToolMessage(call.ID, call.Name, string(resultJSON)))
		}
	}

	return "", errRoundLimit
}

func (a *Agent) recordAssistant(text string) {
	if err := a.history.Append(map[string]any{"type": "assistant", "text": text}); err != nil {
		a.log.Warn().Err(err).Msg("history append failed")
	}
}

// parseToolArgs decodes a tool call's argument JSON. Malformed payloads are
// wrapped as a _raw field instead of failing the round.
func parseToolArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{"_raw": raw}
	}
	return args
}

func (a *Agent) debugRound(round int) {
	a.log.Debug().Msgf("===== round %d/%d =====", round+1, a.cfg.MaxToolRounds)
	a.log.Debug().Int("messages", len(a.messages)).Msg("request")

	start := len(a.messages) - 12
	if start < 0 {
		start = 0
	}
	for idx := start; idx < len(a.messages); idx++ {
		m := a.messages[idx]
		preview := truncate(strings.ReplaceAll(m.Text(), "\n", "\\n"), 200)
		ev := a.log.Debug().Int("idx", idx).Str("role", m.Role)
		if m.Name != "" {
			ev = ev.Str("name", m.Name)
		}
		ev.Str("preview", preview).Msg("message")
	}
}

func (a *Agent) debugResponse(resp llm.Message) {
	if text := strings.TrimSpace(resp.Text()); text != "" {
		a.log.Debug().Str("assistant", truncate(strings.ReplaceAll(text, "\n", "\\n"), 400)).Msg("response")
	}
	if len(resp.ToolCalls) > 0 {
		var names []string
		for _, c := range resp.ToolCalls {
			names = append(names, c.Name)
		}
		a.log.Debug().Str("tools", strings.Join(names, ", ")).Msg("assistant requested tools")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
