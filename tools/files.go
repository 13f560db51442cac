package tools

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Directory names never descended into during searches.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
}

func (r *Registry) readFile(args map[string]any) map[string]any {
	path, ok := stringArg(args, "path")
	if !ok {
		return fail("path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err.Error())
	}
	content := string(data)

	startLine, hasStart := intArg(args, "start_line")
	endLine, hasEnd := intArg(args, "end_line")
	if hasStart || hasEnd {
		lines := strings.Split(content, "\n")
		start := 1
		if hasStart && startLine > 0 {
			start = startLine
		}
		end := len(lines)
		if hasEnd && endLine < end {
			end = endLine
		}
		// An inverted or out-of-bounds range selects nothing.
		if start > len(lines) || end < start {
			content = ""
		} else {
			content = strings.Join(lines[start-1:end], "\n")
		}
	}

	return map[string]any{"ok": true, "path": path, "content": content}
}

func (r *Registry) listDir(args map[string]any) map[string]any {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		path = "."
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fail(err.Error())
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return map[string]any{"ok": true, "path": path, "entries": names}
}

func (r *Registry) grepSearch(args map[string]any) map[string]any {
	pattern, ok := stringArg(args, "pattern")
	if !ok {
		return fail("pattern is required")
	}
	root, ok := stringArg(args, "root")
	if !ok || root == "" {
		root = "."
	}
	maxResults, ok := intArg(args, "max_results")
	if !ok || maxResults <= 0 {
		maxResults = 20
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fail("invalid pattern: " + err.Error())
	}

	stateBase := filepath.Base(r.StateDir)
	type match struct {
		File string `json:"file"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var matches []match

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			name := d.Name()
			if skipDirs[name] || name == stateBase {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxResults {
			return filepath.SkipAll
		}

		data, err := os.ReadFile(path)
		if err != nil || !isText(data) {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, match{File: path, Line: i + 1, Text: strings.TrimRight(line, "\r")})
				if len(matches) >= maxResults {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return fail(walkErr.Error())
	}

	return map[string]any{"ok": true, "pattern": pattern, "matches": matches}
}

func (r *Registry) writeFile(args map[string]any) map[string]any {
	path, ok := stringArg(args, "path")
	if !ok {
		return fail("path is required")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return fail("content is required")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail(err.Error())
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fail(err.Error())
	}
	return map[string]any{"ok": true, "path": path, "bytes": len(content)}
}

// readFileOrEmpty treats a missing file as empty content, so diffs against
// new files render as pure additions.
func readFileOrEmpty(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// isText rejects files containing NUL bytes; good enough to keep binaries
// out of grep results.
func isText(data []byte) bool {
	limit := len(data)
	if limit > 8000 {
		limit = 8000
	}
	for _, b := range data[:limit] {
		if b == 0 {
			return false
		}
	}
	return true
}
