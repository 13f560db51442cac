package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

// Theme groups the ANSI color codes used by the REPL.
type Theme struct {
	ID      string
	Name    string
	Border  string
	Accent  string
	Dim     string
	Text    string
	Success string
	Error   string
}

const ansiReset = "\033[0m"

var themes = []Theme{
	{ID: "dark", Name: "Dark mode", Border: "\033[38;5;208m", Accent: "\033[38;5;214m", Dim: "\033[38;5;245m", Text: "\033[38;5;252m", Success: "\033[38;5;42m", Error: "\033[38;5;196m"},
	{ID: "light", Name: "Light mode", Border: "\033[38;5;25m", Accent: "\033[38;5;27m", Dim: "\033[38;5;242m", Text: "\033[38;5;236m", Success: "\033[38;5;28m", Error: "\033[38;5;160m"},
	{ID: "dark_ansi", Name: "Dark mode (ANSI colors only)", Border: "\033[33m", Accent: "\033[33m", Dim: "\033[90m", Text: "\033[37m", Success: "\033[32m", Error: "\033[31m"},
	{ID: "light_ansi", Name: "Light mode (ANSI colors only)", Border: "\033[34m", Accent: "\033[34m", Dim: "\033[90m", Text: "\033[30m", Success: "\033[32m", Error: "\033[31m"},
}

func getTheme(id string) Theme {
	for _, t := range themes {
		if t.ID == id {
			return t
		}
	}
	return themes[0]
}

func supportsColor() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

func (t Theme) wrap(s, code string) string {
	if !supportsColor() {
		return s
	}
	return code + s + ansiReset
}

func (t Theme) a(s string) string   { return t.wrap(s, t.Accent) }
func (t Theme) d(s string) string   { return t.wrap(s, t.Dim) }
func (t Theme) ok(s string) string  { return t.wrap(s, t.Success) }
func (t Theme) err(s string) string { return t.wrap(s, t.Error) }

func bold(s string) string {
	if !supportsColor() {
		return s
	}
	return "\033[1m" + s + ansiReset
}

func clearScreen() {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Print("\033[2J\033[H")
	}
}

func renderBanner(t Theme) string {
	return t.a("loopkit") + t.d(" — tiny tool-using LLM agent")
}

func renderSystemInfo(t Theme, model, cwd string) string {
	return t.d("model: ") + model + "\n" + t.d("cwd:   ") + cwd
}

// renderMarkdown converts a small subset of Markdown (headings, bullets,
// blockquotes, code fences, inline code, bold) into terminal-friendly text.
// It is deliberately lightweight; model replies rarely use more than this.
func renderMarkdown(text string, t Theme) string {
	var out []string
	inCode := false

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)

		if strings.HasPrefix(stripped, "```") {
			if !inCode {
				inCode = true
				label := "code"
				if lang := strings.TrimSpace(stripped[3:]); lang != "" {
					label += " (" + lang + ")"
				}
				out = append(out, t.d(label))
			} else {
				inCode = false
				out = append(out, "")
			}
			continue
		}
		if inCode {
			out = append(out, t.d("  "+line))
			continue
		}

		if strings.HasPrefix(stripped, "#") {
			head := strings.TrimSpace(strings.TrimLeft(stripped, "#"))
			out = append(out, t.a(bold(renderInlines(head, t))))
			continue
		}
		if strings.HasPrefix(stripped, ">") {
			quote := strings.TrimSpace(strings.TrimPrefix(stripped, ">"))
			prefix := "| "
			if supportsColor() {
				prefix = t.d("│ ")
			}
			out = append(out, prefix+renderInlines(quote, t))
			continue
		}
		if strings.HasPrefix(stripped, "- ") || strings.HasPrefix(stripped, "* ") {
			out = append(out, t.a("•")+" "+renderInlines(stripped[2:], t))
			continue
		}

		out = append(out, renderInlines(line, t))
	}

	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

// renderInlines styles `code` spans and **bold** runs.
func renderInlines(s string, t Theme) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '`' {
			if j := strings.IndexByte(s[i+1:], '`'); j >= 0 {
				code := s[i+1 : i+1+j]
				if supportsColor() {
					b.WriteString(t.a(code))
				} else {
					b.WriteString("`" + code + "`")
				}
				i += j + 2
				continue
			}
		}
		if strings.HasPrefix(s[i:], "**") {
			if j := strings.Index(s[i+2:], "**"); j >= 0 {
				b.WriteString(bold(s[i+2 : i+2+j]))
				i += j + 4
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// uiSettings is the persisted UI preference file (theme choice).
type uiSettings struct {
	Theme string `json:"theme"`
}

func loadUISettings(path string) uiSettings {
	var s uiSettings
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	_ = json.Unmarshal(data, &s)
	return s
}

func saveUISettings(path string, s uiSettings) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, append(data, '\n'), 0o644)
}
