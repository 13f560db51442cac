package patch

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/loopkit/loopkit/diffs"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestApplyAddFile(t *testing.T) {
	chdir(t, t.TempDir())

	res, err := Apply(`*** Begin Patch
*** Add File: notes/hello.txt
+first line
+second line
*** End Patch`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0].Kind != ActionAdd {
		t.Fatalf("expected one add action, got %+v", res.Applied)
	}
	got := readFile(t, "notes/hello.txt")
	if got != "first line\nsecond line\n" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestApplyAddFileEmptyHasNoTrailingNewline(t *testing.T) {
	chdir(t, t.TempDir())

	if _, err := Apply("*** Begin Patch\n*** Add File: empty.txt\n*** End Patch"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readFile(t, "empty.txt"); got != "" {
		t.Errorf("expected empty file, got %q", got)
	}
}

func TestApplyUpdateLeftmostMatch(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "f.txt", "a\nb\nc\n")

	_, err := Apply(`*** Begin Patch
*** Update File: f.txt
@@
 a
-b
+X
*** End Patch`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readFile(t, "f.txt"); got != "a\nX\nc\n" {
		t.Errorf("expected a/X/c, got %q", got)
	}
}

func TestApplyUpdateWithoutHunkHeader(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "f.txt", "one\ntwo\n")

	_, err := Apply(`*** Begin Patch
*** Update File: f.txt
 one
-two
+three
*** End Patch`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readFile(t, "f.txt"); got != "one\nthree\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyUpdateMultipleHunks(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "f.txt", "a\nb\nc\nd\ne\n")

	res, err := Apply(`*** Begin Patch
*** Update File: f.txt
@@
-a
+A
@@
-e
+E
*** End Patch`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Applied[0].Chunks != 2 {
		t.Errorf("expected 2 chunks, got %d", res.Applied[0].Chunks)
	}
	if got := readFile(t, "f.txt"); got != "A\nb\nc\nd\nE\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyUpdateToleratesTrailingWhitespace(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "f.txt", "hello   \nworld\n")

	_, err := Apply(`*** Begin Patch
*** Update File: f.txt
@@
-hello
+goodbye
*** End Patch`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readFile(t, "f.txt"); got != "goodbye\nworld\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyUpdateUnmatchedPattern(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "f.txt", "a\nb\n")

	_, err := Apply(`*** Begin Patch
*** Update File: f.txt
@@
-zzz
+yyy
*** End Patch`)
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !strings.Contains(perr.Message, "f.txt") {
		t.Errorf("error should name the file: %q", perr.Message)
	}
}

func TestApplyDeleteFile(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "doomed.txt", "bye\n")

	_, err := Apply("*** Begin Patch\n*** Delete File: doomed.txt\n*** End Patch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat("doomed.txt"); !os.IsNotExist(err) {
		t.Errorf("file should be gone, stat err: %v", err)
	}
}

func TestApplyDeleteMissingFileIsSilent(t *testing.T) {
	chdir(t, t.TempDir())

	res, err := Apply("*** Begin Patch\n*** Delete File: never-existed.txt\n*** End Patch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0].Kind != ActionDelete {
		t.Errorf("expected delete action, got %+v", res.Applied)
	}
}

func TestApplyMissingBeginMarker(t *testing.T) {
	_, err := Apply("*** Add File: f.txt\n+x\n*** End Patch")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}
}

func TestApplyUnexpectedDirective(t *testing.T) {
	_, err := Apply("*** Begin Patch\n*** Rename File: f.txt\n*** End Patch")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !strings.Contains(perr.Message, "Unexpected patch line") {
		t.Errorf("unexpected message: %q", perr.Message)
	}
}

func TestApplyPartialFailureKeepsEarlierActions(t *testing.T) {
	chdir(t, t.TempDir())
	writeFile(t, "f.txt", "a\n")

	_, err := Apply(`*** Begin Patch
*** Add File: added.txt
+ok
*** Update File: f.txt
@@
-zzz
+yyy
*** End Patch`)
	if err == nil {
		t.Fatal("expected error")
	}
	// The Add before the failing Update is not rolled back.
	if got := readFile(t, "added.txt"); got != "ok\n" {
		t.Errorf("earlier add should survive, got %q", got)
	}
}

func TestApplyThenDiffRoundTrip(t *testing.T) {
	chdir(t, t.TempDir())
	old := "alpha\nbeta\ngamma\n"
	writeFile(t, "f.txt", old)

	_, err := Apply(`*** Begin Patch
*** Update File: f.txt
@@
 alpha
-beta
+delta
*** End Patch`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := diffs.Unified("f.txt", old, readFile(t, "f.txt"))
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !strings.Contains(out, "-beta\n") || !strings.Contains(out, "+delta\n") {
		t.Errorf("diff does not reproduce the declared change:\n%s", out)
	}
}

func TestFindSubsequenceEmptyPatternMatchesAtTop(t *testing.T) {
	if got := findSubsequence([]string{"a", "b"}, nil, nil); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
