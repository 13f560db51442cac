// Package patch parses and applies structured, diff-like patches against
// the filesystem. The format is a small V4A-style grammar:
//
//	*** Begin Patch
//	*** Add File: path/to/newfile.txt
//	+This is a new file.
//	+It has multiple lines.
//	*** Delete File: path/to/oldfile.txt
//	*** Update File: path/to/existingfile.txt
//	@@ -1,3 +1,4 @@
//	 Line 1
//	-Line 2
//	+Modified Line 2
//	 Line 3
//	*** End Patch
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Error is a structural patch failure: malformed grammar or an Update hunk
// whose pattern cannot be located. It aborts the whole patch application;
// actions already applied are not rolled back.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Action kinds.
const (
	ActionAdd    = "add"
	ActionDelete = "delete"
	ActionUpdate = "update"
)

// Action records one applied file operation.
type Action struct {
	Kind   string `json:"action"`
	Path   string `json:"path"`
	Chunks int    `json:"chunks,omitempty"`
}

// Result lists the applied actions in order.
type Result struct {
	Applied []Action `json:"applied"`
}

// chunk is one hunk of an Update action: raw context/deletion/addition lines.
type chunk struct {
	lines []string
}

// Apply parses and applies the patch text. Paths are interpreted relative
// to the current working directory. On a structural failure it returns an
// *Error; any actions applied before the failure stay applied.
func Apply(patchText string) (*Result, error) {
	lines := splitLines(patchText)

	begin := -1
	for idx, l := range lines {
		if strings.HasPrefix(l, "*** Begin Patch") {
			begin = idx
			break
		}
	}
	if begin < 0 {
		return nil, errorf("Patch must start with '*** Begin Patch'")
	}

	applied := make([]Action, 0, 4)
	i := begin + 1
	for i < len(lines) {
		line := lines[i]
		if strings.HasPrefix(line, "*** End Patch") {
			break
		}

		switch {
		case strings.HasPrefix(line, "*** Add File:"):
			path := directivePath(line)
			i++
			var content []string
			for i < len(lines) && !strings.HasPrefix(lines[i], "*** ") {
				l := lines[i]
				// Allow an optional leading '+' on file content.
				content = append(content, strings.TrimPrefix(l, "+"))
				i++
			}
			text := strings.Join(content, "\n")
			if len(content) > 0 {
				text += "\n"
			}
			if err := writeText(path, text); err != nil {
				return nil, err
			}
			applied = append(applied, Action{Kind: ActionAdd, Path: path})

		case strings.HasPrefix(line, "*** Delete File:"):
			path := directivePath(line)
			i++
			if _, err := os.Stat(path); err == nil {
				if err := os.Remove(path); err != nil {
					return nil, fmt.Errorf("delete %s: %w", path, err)
				}
			}
			applied = append(applied, Action{Kind: ActionDelete, Path: path})

		case strings.HasPrefix(line, "*** Update File:"):
			path := directivePath(line)
			i++
			var chunks []chunk
			if i < len(lines) && !strings.HasPrefix(lines[i], "@@") {
				// No @@ headers: the whole block up to the next directive
				// is a single hunk.
				var cl []string
				for i < len(lines) && !strings.HasPrefix(lines[i], "*** ") {
					cl = append(cl, lines[i])
					i++
				}
				chunks = append(chunks, chunk{lines: cl})
			} else {
				for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
					i++
					var cl []string
					for i < len(lines) && !strings.HasPrefix(lines[i], "@@") && !strings.HasPrefix(lines[i], "*** ") {
						cl = append(cl, lines[i])
						i++
					}
					chunks = append(chunks, chunk{lines: cl})
				}
			}
			if err := applyUpdate(path, chunks); err != nil {
				return nil, err
			}
			applied = append(applied, Action{Kind: ActionUpdate, Path: path, Chunks: len(chunks)})

		default:
			return nil, errorf("Unexpected patch line: %s", line)
		}
	}

	return &Result{Applied: applied}, nil
}

// applyUpdate applies the hunks in order against the progressively modified
// line list, then rewrites the file in full.
func applyUpdate(path string, chunks []chunk) error {
	oldText := ""
	if data, err := os.ReadFile(path); err == nil {
		oldText = string(data)
	}
	fileLines := splitLines(oldText)

	for _, ch := range chunks {
		pattern, replacement := compileChunk(ch.lines)
		start := findSubsequence(fileLines, pattern, nil)
		if start < 0 {
			start = findSubsequence(fileLines, pattern, rstrip)
		}
		if start < 0 {
			start = findSubsequence(fileLines, pattern, stripSpace)
		}
		if start < 0 {
			return errorf("Could not find chunk to apply in %s (pattern length=%d)", path, len(pattern))
		}

		next := make([]string, 0, len(fileLines)-len(pattern)+len(replacement))
		next = append(next, fileLines[:start]...)
		next = append(next, replacement...)
		next = append(next, fileLines[start+len(pattern):]...)
		fileLines = next
	}

	text := strings.Join(fileLines, "\n")
	if len(fileLines) > 0 {
		text += "\n"
	}
	return writeText(path, text)
}

// compileChunk splits a hunk's lines into (pattern, replacement).
// Context lines (optionally space-prefixed) go to both; '-' lines go to the
// pattern only; '+' lines go to the replacement only.
func compileChunk(lines []string) (pattern, replacement []string) {
	for _, raw := range lines {
		switch {
		case strings.HasPrefix(raw, "+"):
			replacement = append(replacement, raw[1:])
		case strings.HasPrefix(raw, "-"):
			pattern = append(pattern, raw[1:])
		default:
			ctx := raw
			if strings.HasPrefix(raw, " ") {
				ctx = raw[1:]
			}
			pattern = append(pattern, ctx)
			replacement = append(replacement, ctx)
		}
	}
	return pattern, replacement
}

// findSubsequence returns the leftmost index where needle appears as a
// contiguous run in haystack, comparing through canonical when given.
// An empty needle matches at index 0.
func findSubsequence(haystack, needle []string, canonical func(string) string) int {
	if canonical == nil {
		canonical = func(s string) string { return s }
	}
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if canonical(haystack[i+j]) != canonical(needle[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func rstrip(s string) string     { return strings.TrimRight(s, " \t\r\n") }
func stripSpace(s string) string { return strings.TrimSpace(s) }

// directivePath extracts the path after the first ':' in a directive line.
func directivePath(line string) string {
	_, rest, _ := strings.Cut(line, ":")
	return strings.TrimSpace(rest)
}

// splitLines splits on '\n' without producing a trailing empty element.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeText(path, content string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
