// Copyright (C) 2025 Harbor Works (dev@harborworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gitio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/harborworks/breakwater/services/checks/lint"
)

// initRepo creates a git repository with one committed file.
func initRepo(t *testing.T) (string, *Client) {
	t.Helper()
	if !Available() {
		t.Skip("git not installed")
	}

	root := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init", "-q")
	if err := os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc main() {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "initial")

	return root, NewClient(root)
}

func TestChangedFiles(t *testing.T) {
	root, c := initRepo(t)

	// Modify one tracked file and add one untracked file.
	if err := os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc main() { println() }\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "util.go"),
		[]byte("package main\n"), 0600); err != nil {
		t.Fatal(err)
	}

	files, err := c.ChangedFiles(context.Background())
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}

	got := map[string]bool{}
	for _, f := range files {
		got[f] = true
	}
	if !got["main.go"] || !got["util.go"] {
		t.Errorf("files = %v", files)
	}
}

func TestChangedFilesClean(t *testing.T) {
	_, c := initRepo(t)

	files, err := c.ChangedFiles(context.Background())
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("clean tree should report nothing, got %v", files)
	}
}

func TestChangedLines(t *testing.T) {
	root, c := initRepo(t)

	// Change line 3 and append two lines.
	if err := os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc main() { run() }\n\nfunc run() {}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	ranges, err := c.ChangedLines(context.Background())
	if err != nil {
		t.Fatalf("ChangedLines: %v", err)
	}

	got := ranges["main.go"]
	if len(got) == 0 {
		t.Fatalf("ranges = %v", ranges)
	}
	covered := func(line int) bool {
		for _, r := range got {
			if r.Contains(line) {
				return true
			}
		}
		return false
	}
	if !covered(3) || !covered(5) {
		t.Errorf("lines 3 and 5 should be covered: %v", got)
	}
	if covered(1) {
		t.Errorf("line 1 is unchanged: %v", got)
	}
}

func TestParseChangedLines(t *testing.T) {
	raw := []byte(`diff --git a/pkg/x.go b/pkg/x.go
index 0000000..1111111 100644
--- a/pkg/x.go
+++ b/pkg/x.go
@@ -10,0 +11,3 @@ func x() {
+a
+b
+c
@@ -20 +23 @@ func y() {
-old
+new
`)

	ranges, err := parseChangedLines(raw)
	if err != nil {
		t.Fatalf("parseChangedLines: %v", err)
	}

	got := ranges["pkg/x.go"]
	want := []LineRange{{Start: 11, End: 13}, {Start: 23, End: 23}}
	if len(got) != len(want) {
		t.Fatalf("ranges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseChangedLinesEmpty(t *testing.T) {
	ranges, err := parseChangedLines([]byte("  \n"))
	if err != nil {
		t.Fatalf("parseChangedLines: %v", err)
	}
	if len(ranges) != 0 {
		t.Errorf("ranges = %v", ranges)
	}
}

func TestFilterIssues(t *testing.T) {
	issues := []lint.Issue{
		{Rule: "in-range", Line: 12},
		{Rule: "out-of-range", Line: 99},
		{Rule: "no-position", Line: 0},
	}
	ranges := []LineRange{{Start: 10, End: 15}}

	kept := FilterIssues(issues, ranges)
	if len(kept) != 2 {
		t.Fatalf("kept = %+v", kept)
	}
	if kept[0].Rule != "in-range" || kept[1].Rule != "no-position" {
		t.Errorf("kept = %+v", kept)
	}

	if got := FilterIssues(issues, nil); len(got) != 0 {
		t.Errorf("no ranges should keep nothing, got %+v", got)
	}
}
