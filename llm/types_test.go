package llm

import "testing"

func TestMessageTextNilContent(t *testing.T) {
	m := Message{Role: RoleAssistant}
	if m.Text() != "" {
		t.Errorf("got %q", m.Text())
	}
}

func TestConstructors(t *testing.T) {
	if m := SystemMessage("s"); m.Role != RoleSystem || m.Text() != "s" {
		t.Errorf("system: %+v", m)
	}
	if m := UserMessage("u"); m.Role != RoleUser || m.Text() != "u" {
		t.Errorf("user: %+v", m)
	}
	tm := ToolMessage("id1", "read_file", "{}")
	if tm.Role != RoleTool || tm.ToolCallID != "id1" || tm.Name != "read_file" {
		t.Errorf("tool: %+v", tm)
	}
}
