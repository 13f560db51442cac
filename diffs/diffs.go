// Package diffs produces unified diffs between file contents.
package diffs

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Unified renders a unified diff between old and new content with a/ and b/
// style headers and three lines of context.
func Unified(path, old, new string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(new),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", path, err)
	}
	return out, nil
}
