package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/loopkit/loopkit/agent"
	"github.com/loopkit/loopkit/history"
)

const helpText = `Commands:
  /help                 Show this help
  /context              Print current LLM context (all messages)
  /tools [json]         Show available tools (add 'json' to show full schemas)
  /history [n]          Print last n history events (default 10)
  /theme <id>           Switch color theme
  /clear                Clear the screen
  /reset                Reset in-memory context
  /exit                 Quit

Type anything else to chat.
`

type repl struct {
	agent      *agent.Agent
	history    *history.Store
	theme      Theme
	uiPath     string
	model      string
	in         *bufio.Scanner
	debugPrint bool
}

func (r *repl) run(ctx context.Context) {
	fmt.Println(renderBanner(r.theme))
	fmt.Println()
	cwd, _ := os.Getwd()
	fmt.Println(renderSystemInfo(r.theme, r.model, cwd))
	fmt.Println()
	fmt.Println(r.theme.a("loopkit REPL") + r.theme.d(". Type /help for commands."))

	for {
		fmt.Print(promptString(r.theme))
		if !r.in.Scan() {
			fmt.Println("\nbye")
			return
		}
		raw := strings.TrimRight(r.in.Text(), "\n")
		if strings.TrimSpace(raw) == "" {
			continue
		}

		if strings.HasPrefix(raw, "/") {
			if r.handleCommand(raw) {
				return
			}
			continue
		}

		r.chat(ctx, raw)
	}
}

func (r *repl) chat(ctx context.Context, text string) {
	fmt.Println(r.theme.d("* Simmering..."))

	answer, err := r.agent.Chat(ctx, text)
	if errors.Is(err, agent.ErrPlanPending) {
		if !r.confirmPlan() {
			r.agent.CancelPlan()
			fmt.Println(r.theme.d("(plan cancelled; ask again to proceed without one)"))
			return
		}
		r.agent.ApprovePlan()
		answer, err = r.agent.Chat(ctx, text)
	}
	if err != nil {
		fmt.Println(r.theme.err("error: " + err.Error()))
		return
	}

	if r.debugPrint {
		fmt.Println(strings.Repeat("-", 72))
	}
	fmt.Println(renderMarkdown(answer, r.theme))
}

// confirmPlan prints the pending plan and asks for y/N approval.
func (r *repl) confirmPlan() bool {
	plan := r.agent.PendingPlan()
	if plan == nil {
		return true
	}
	fmt.Println(r.theme.a("Proposed plan:"))
	for i, step := range plan.Steps {
		fmt.Printf("  %d. %s\n", i+1, step.Description)
	}
	fmt.Print(r.theme.a("Execute this plan? [y/N] "))
	if !r.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(r.in.Text()))
	return answer == "y" || answer == "yes"
}

func (r *repl) handleCommand(raw string) (quit bool) {
	parts := strings.Fields(raw)
	switch parts[0] {
	case "/exit":
		return true
	case "/help":
		fmt.Print(helpText)
	case "/reset":
		r.agent.Reset()
		fmt.Println("(context reset)")
	case "/context":
		fmt.Println(r.agent.DumpContext())
	case "/tools":
		asJSON := len(parts) > 1 && strings.EqualFold(parts[1], "json")
		fmt.Println(r.agent.DumpTools(asJSON))
	case "/history":
		n := 10
		if len(parts) > 1 {
			v, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("usage: /history [n]")
				return false
			}
			n = v
		}
		fmt.Print(r.history.Tail(n))
	case "/clear":
		clearScreen()
	case "/theme":
		if len(parts) < 2 {
			var ids []string
			for _, t := range themes {
				ids = append(ids, t.ID)
			}
			fmt.Println("usage: /theme <" + strings.Join(ids, "|") + ">")
			return false
		}
		r.theme = getTheme(parts[1])
		saveUISettings(r.uiPath, uiSettings{Theme: r.theme.ID})
		fmt.Println(r.theme.ok("theme: " + r.theme.ID))
	default:
		fmt.Println("unknown command; try /help")
	}
	return false
}

func promptString(t Theme) string {
	if supportsColor() {
		return t.a("> ")
	}
	return "> "
}
