package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/loopkit/loopkit/history"
	"github.com/loopkit/loopkit/llm"
	"github.com/loopkit/loopkit/tools"
)

type fakeCall struct {
	messages []llm.Message
	tools    []llm.ToolSchema
}

// fakeClient replays a scripted sequence of responses and records every
// request it sees.
type fakeClient struct {
	responses []llm.Message
	errs      []error
	calls     []fakeCall
}

func (f *fakeClient) Chat(ctx context.Context, messages []llm.Message, schemas []llm.ToolSchema) (llm.Message, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, fakeCall{messages: messages, tools: schemas})
	if idx < len(f.errs) && f.errs[idx] != nil {
		return llm.Message{}, f.errs[idx]
	}
	if idx >= len(f.responses) {
		return llm.Message{}, fmt.Errorf("unexpected call %d", idx)
	}
	return f.responses[idx], nil
}

func textResponse(text string) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: &text}
}

func toolResponse(id, name, args string) llm.Message {
	return llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
	}
}

func newTestAgent(t *testing.T, client ChatClient, cfg Config) *Agent {
	t.Helper()
	dir := t.TempDir()
	hist := &history.Store{Path: filepath.Join(dir, "history.jsonl")}
	registry := tools.NewRegistry(dir, filepath.Join(dir, ".agent"))
	t.Cleanup(registry.Close)
	return New(hist, registry, client, cfg, zerolog.Nop())
}

func TestChatToolRoundTrip(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{
		toolResponse("call_1", "list_dir", `{"path":"."}`),
		textResponse("all done"),
	}}
	a := newTestAgent(t, client, Config{})

	got, err := a.Chat(context.Background(), "list the files")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "all done" {
		t.Errorf("answer: %q", got)
	}
	if len(client.calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(client.calls))
	}

	var toolMsgs []llm.Message
	for _, m := range a.Messages() {
		if m.Role == llm.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 1 {
		t.Fatalf("expected 1 tool message, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "call_1" || toolMsgs[0].Name != "list_dir" {
		t.Errorf("tool message: %+v", toolMsgs[0])
	}
	if !strings.Contains(toolMsgs[0].Text(), `"ok":true`) {
		t.Errorf("tool result payload: %q", toolMsgs[0].Text())
	}
}

func TestChatRoundLimit(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{
		toolResponse("c1", "list_dir", `{"path":"."}`),
		toolResponse("c2", "list_dir", `{"path":"."}`),
	}}
	a := newTestAgent(t, client, Config{MaxToolRounds: 1})

	got, err := a.Chat(context.Background(), "do something endless")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != roundLimitMessage {
		t.Errorf("answer: %q", got)
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 model call, got %d", len(client.calls))
	}
}

func TestChatMalformedToolArgsWrappedAsRaw(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{
		toolResponse("c1", "list_dir", "not json"),
		textResponse("ok"),
	}}
	a := newTestAgent(t, client, Config{})

	if _, err := a.Chat(context.Background(), "go"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	// The registry received {"_raw": "not json"}; list_dir then failed on a
	// missing path, but the loop must have carried on regardless.
	var found bool
	for _, m := range a.Messages() {
		if m.Role == llm.RoleTool {
			found = true
		}
	}
	if !found {
		t.Error("tool result message missing")
	}
}

func TestChatModelErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	client := &fakeClient{errs: []error{wantErr}}
	a := newTestAgent(t, client, Config{})

	_, err := a.Chat(context.Background(), "hello")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSimpleQuerySkipsClassifier(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{textResponse("it is a repo")}}
	a := newTestAgent(t, client, Config{EnablePlanning: true})

	got, err := a.Chat(context.Background(), "what is this?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "it is a repo" {
		t.Errorf("answer: %q", got)
	}
	// Exactly one call, and it is the main loop call (tools offered), not a
	// classification call.
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(client.calls))
	}
	if len(client.calls[0].tools) == 0 {
		t.Error("expected tool schemas on the main call")
	}
}

func TestPlanningDisabledByDefault(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{textResponse("done")}}
	a := newTestAgent(t, client, Config{})

	if _, err := a.Chat(context.Background(), "refactor every module in the tree completely"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 model call, got %d", len(client.calls))
	}
}

func TestPlanApprovalFlow(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{
		textResponse(`{"needs_plan": true, "reasoning": "multi-file", "steps": ["step one", "step two"]}`),
		textResponse("finished step one"),
		textResponse("finished step two"),
		textResponse("everything is updated"),
	}}
	a := newTestAgent(t, client, Config{EnablePlanning: true})

	var completed []string
	a.OnStepComplete = func(step Step, index, total int) {
		completed = append(completed, fmt.Sprintf("%d/%d %s", index+1, total, step.Description))
	}

	request := "refactor the parser and update every call site"
	_, err := a.Chat(context.Background(), request)
	if !errors.Is(err, ErrPlanPending) {
		t.Fatalf("expected ErrPlanPending, got %v", err)
	}
	plan := a.PendingPlan()
	if plan == nil || len(plan.Steps) != 2 {
		t.Fatalf("pending plan: %+v", plan)
	}
	// Only the classification call so far.
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 call before approval, got %d", len(client.calls))
	}
	if client.calls[0].tools != nil {
		t.Error("classification call must not offer tools")
	}

	a.ApprovePlan()
	got, err := a.Chat(context.Background(), request)
	if err != nil {
		t.Fatalf("chat after approval: %v", err)
	}
	if got != "everything is updated" {
		t.Errorf("answer: %q", got)
	}
	if len(client.calls) != 4 {
		t.Fatalf("expected 4 calls total, got %d", len(client.calls))
	}

	// Second step runs off a synthesized continuation message.
	stepTwoCall := client.calls[2]
	last := stepTwoCall.messages[len(stepTwoCall.messages)-1]
	if last.Role != llm.RoleUser || last.Text() != "Continue with next step: step two" {
		t.Errorf("continuation message: %+v", last)
	}

	// Finalization call carries the structured payload without tools.
	finalCall := client.calls[3]
	if finalCall.tools != nil {
		t.Error("finalization call must not offer tools")
	}
	payload := finalCall.messages[len(finalCall.messages)-1].Text()
	if !strings.Contains(payload, request) || !strings.Contains(payload, "finished step one") {
		t.Errorf("finalization payload: %q", payload)
	}

	if len(completed) != 2 || completed[0] != "1/2 step one" || completed[1] != "2/2 step two" {
		t.Errorf("step callbacks: %v", completed)
	}
	if a.PendingPlan() != nil {
		t.Error("plan should be cleared after completion")
	}
}

func TestPlanStepRoundExhaustionStopsPlan(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{
		textResponse(`{"needs_plan": true, "reasoning": "r", "steps": ["step one", "step two"]}`),
		toolResponse("c1", "list_dir", `{"path":"."}`),
	}}
	a := newTestAgent(t, client, Config{EnablePlanning: true, AutoApprovePlans: true, MaxToolRounds: 1})

	var completed int
	a.OnStepComplete = func(Step, int, int) { completed++ }

	got, err := a.Chat(context.Background(), "rebuild the indexer and backfill all historical data")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != roundLimitMessage {
		t.Errorf("answer: %q", got)
	}
	// Classification plus the single exhausted sub-turn call; no further
	// steps, no finalization.
	if len(client.calls) != 2 {
		t.Errorf("expected 2 model calls, got %d", len(client.calls))
	}
	if completed != 0 {
		t.Errorf("no step may be reported complete, got %d", completed)
	}
	if a.plan == nil || a.plan.Current != 0 || a.plan.Steps[0].Completed {
		t.Errorf("cursor must not advance past an unfinished step: %+v", a.plan)
	}
}

func TestPlanApprovalLogsUserEventOnce(t *testing.T) {
	dir := t.TempDir()
	histPath := filepath.Join(dir, "history.jsonl")
	hist := &history.Store{Path: histPath}
	registry := tools.NewRegistry(dir, filepath.Join(dir, ".agent"))
	t.Cleanup(registry.Close)

	client := &fakeClient{responses: []llm.Message{
		textResponse(`{"needs_plan": true, "reasoning": "r", "steps": ["only step"]}`),
		textResponse("did it"),
		textResponse("summary"),
	}}
	a := New(hist, registry, client, Config{EnablePlanning: true}, zerolog.Nop())

	request := "migrate the database and rewrite every consumer"
	if _, err := a.Chat(context.Background(), request); !errors.Is(err, ErrPlanPending) {
		t.Fatalf("expected ErrPlanPending, got %v", err)
	}
	a.ApprovePlan()
	if _, err := a.Chat(context.Background(), request); err != nil {
		t.Fatalf("chat after approval: %v", err)
	}

	data, err := os.ReadFile(histPath)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if n := strings.Count(string(data), `"type":"user"`); n != 1 {
		t.Errorf("expected 1 user event, got %d:\n%s", n, data)
	}
}

func TestPlanFinalizationFallsBackToLastStepText(t *testing.T) {
	client := &fakeClient{
		responses: []llm.Message{
			textResponse(`{"needs_plan": true, "reasoning": "r", "steps": ["only step"]}`),
			textResponse("raw step result"),
			{},
		},
		errs: []error{nil, nil, errors.New("finalize failed")},
	}
	a := newTestAgent(t, client, Config{EnablePlanning: true, AutoApprovePlans: true})

	got, err := a.Chat(context.Background(), "rework the build and release pipeline end to end")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "raw step result" {
		t.Errorf("answer: %q", got)
	}
}

func TestCancelPlan(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{
		textResponse(`{"needs_plan": true, "reasoning": "r", "steps": ["a"]}`),
		textResponse("unplanned answer"),
	}}
	a := newTestAgent(t, client, Config{EnablePlanning: true})

	request := "restructure the storage layer and migrate existing data"
	if _, err := a.Chat(context.Background(), request); !errors.Is(err, ErrPlanPending) {
		t.Fatalf("expected ErrPlanPending, got %v", err)
	}
	a.CancelPlan()

	// Re-asking triggers a fresh classification; script it to decline.
	client.responses = append([]llm.Message{textResponse(`{"needs_plan": false, "reasoning": "r"}`)}, client.responses[1:]...)
	client.calls = client.calls[:0]
	got, err := a.Chat(context.Background(), request)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "unplanned answer" {
		t.Errorf("answer: %q", got)
	}
}

func TestResetClearsConversationAndPlan(t *testing.T) {
	client := &fakeClient{responses: []llm.Message{textResponse("hi")}}
	a := newTestAgent(t, client, Config{})

	if _, err := a.Chat(context.Background(), "hello there"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	a.Reset()
	msgs := a.Messages()
	if len(msgs) != 1 || msgs[0].Role != llm.RoleSystem {
		t.Errorf("messages after reset: %+v", msgs)
	}
}

func TestDumpTools(t *testing.T) {
	a := newTestAgent(t, &fakeClient{}, Config{})

	listing := a.DumpTools(false)
	if !strings.Contains(listing, "- apply_patch:") {
		t.Errorf("listing: %q", listing)
	}
	asJSON := a.DumpTools(true)
	if !strings.Contains(asJSON, `"read_file"`) {
		t.Errorf("json listing: %q", asJSON)
	}
}
