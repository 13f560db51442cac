package tools

import "github.com/loopkit/loopkit/llm"

func toolSchemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        "read_file",
			Description: "Read a file's contents, optionally limited to a 1-based line range.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":       map[string]any{"type": "string", "description": "Path to the file to read."},
					"start_line": map[string]any{"type": "integer", "description": "First line to include (1-based)."},
					"end_line":   map[string]any{"type": "integer", "description": "Last line to include (inclusive)."},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "list_dir",
			Description: "List the entries of a directory. Directories are suffixed with '/'.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Directory to list. Defaults to '.'."},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "grep_search",
			Description: "Search text files under a root directory for a regular expression.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern":     map[string]any{"type": "string", "description": "Regular expression to match against each line."},
					"root":        map[string]any{"type": "string", "description": "Directory to search from. Defaults to '.'."},
					"max_results": map[string]any{"type": "integer", "description": "Maximum matches to return. Defaults to 20."},
				},
				"required": []string{"pattern"},
			},
		},
		{
			Name:        "write_file",
			Description: "Write content to a file, creating parent directories as needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "Path to write."},
					"content": map[string]any{"type": "string", "description": "Full file content."},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        "apply_patch",
			Description: "Apply a structured patch that can add, delete, and update multiple files. The patch must start with '*** Begin Patch' and end with '*** End Patch'.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"patch": map[string]any{"type": "string", "description": "The full patch text."},
				},
				"required": []string{"patch"},
			},
		},
		{
			Name:        "create_diff",
			Description: "Preview a change as a unified diff between a file's current content and proposed new content, without writing anything.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":        map[string]any{"type": "string", "description": "Path of the file being changed."},
					"new_content": map[string]any{"type": "string", "description": "Proposed full content of the file."},
				},
				"required": []string{"path", "new_content"},
			},
		},
		{
			Name:        "execute_command",
			Description: "Run a shell command in the persistent terminal session. Working directory changes persist across calls. Set is_background to launch long-running commands without blocking.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command":       map[string]any{"type": "string", "description": "Shell command to run."},
					"cwd":           map[string]any{"type": "string", "description": "Directory to cd into before running."},
					"timeout_s":     map[string]any{"type": "integer", "description": "Seconds to wait for completion. Defaults to 120."},
					"is_background": map[string]any{"type": "boolean", "description": "Run detached and return a process_id immediately."},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        "get_process_output",
			Description: "Fetch the captured output and liveness of a background process started by execute_command.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"process_id": map[string]any{"type": "string", "description": "Identifier returned when the process was started."},
					"tail_lines": map[string]any{"type": "integer", "description": "How many trailing log lines to return. Defaults to 200."},
				},
				"required": []string{"process_id"},
			},
		},
		{
			Name:        "list_processes",
			Description: "List all background processes started in this session.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
