package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loopkit/loopkit/llm"
)

const planningPrompt = `Analyze this request and determine if it needs a multi-step plan:

Request: %s

Respond with JSON only:
{
  "needs_plan": true/false,
  "reasoning": "why it does/doesn't need a plan",
  "steps": ["step 1", "step 2", ...] (only if needs_plan is true)
}

Needs a plan if:
- Multiple files need changes
- Requires exploration before acting
- Has 3+ logical steps
- Involves coordination across components

Does NOT need a plan if:
- Simple question/explanation
- Single file edit
- Quick lookup/search
- 1-2 trivial steps
`

// Cue words marking a request as a simple lookup. Combined with a word-count
// bound, they let shouldPlan skip the classification call entirely.
var simpleQueryCues = []string{"what", "how", "why", "show", "list", "?"}

type planVerdict struct {
	NeedsPlan bool     `json:"needs_plan"`
	Reasoning string   `json:"reasoning"`
	Steps     []string `json:"steps"`
}

// shouldPlan decides whether a request needs decomposition. The heuristic
// short-circuit takes precedence over the model classifier; any failure in
// the classification call degrades to "no plan" so planning never blocks the
// underlying request.
func shouldPlan(ctx context.Context, client ChatClient, userText string, enabled bool) (bool, []string, string) {
	if !enabled {
		return false, nil, "planning disabled"
	}

	lower := strings.ToLower(userText)
	if len(strings.Fields(userText)) < 10 {
		for _, cue := range simpleQueryCues {
			if strings.Contains(lower, cue) {
				return false, nil, "simple query"
			}
		}
	}

	prompt := fmt.Sprintf(planningPrompt, userText)
	resp, err := client.Chat(ctx, []llm.Message{llm.UserMessage(prompt)}, nil)
	if err == nil {
		if verdict, ok := parsePlanVerdict(resp.Text()); ok {
			reasoning := verdict.Reasoning
			if reasoning == "" {
				reasoning = "llm analysis"
			}
			return verdict.NeedsPlan, verdict.Steps, reasoning
		}
	}
	return false, nil, "planning analysis failed"
}

// parsePlanVerdict extracts and decodes the first {...} span in the model's
// reply.
func parsePlanVerdict(content string) (planVerdict, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return planVerdict{}, false
	}
	var verdict planVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return planVerdict{}, false
	}
	return verdict, true
}
