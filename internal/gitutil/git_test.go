package gitutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.name", "test")
	run("config", "user.email", "test@test")
	if err := os.WriteFile(filepath.Join(dir, "initial.txt"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestIsRepo(t *testing.T) {
	ctx := context.Background()
	dir := initTestRepo(t)
	if !IsRepo(ctx, dir) {
		t.Error("initialized repo not recognized")
	}
	if IsRepo(ctx, t.TempDir()) {
		t.Error("bare tempdir recognized as repo")
	}
}

func TestDiffNumstatAndNames(t *testing.T) {
	ctx := context.Background()
	dir := initTestRepo(t)

	if err := os.WriteFile(filepath.Join(dir, "initial.txt"), []byte("one\nthree\nfour\nfive\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stats, err := DiffNumstat(ctx, dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	st := stats[0]
	if st.Path != "initial.txt" || st.Binary {
		t.Errorf("stat = %+v", st)
	}
	if st.Added == 0 || st.Deleted == 0 {
		t.Errorf("counts not parsed: %+v", st)
	}

	names, err := DiffNameOnly(ctx, dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "initial.txt" {
		t.Errorf("names = %v", names)
	}
}

func TestUntrackedFiles(t *testing.T) {
	ctx := context.Background()
	dir := initTestRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "scratch.go"), []byte("package scratch\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := UntrackedFiles(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "scratch.go" {
		t.Errorf("files = %v", files)
	}
}

func TestUserIdentity(t *testing.T) {
	ctx := context.Background()
	dir := initTestRepo(t)
	if got := UserName(ctx, dir); got != "test" {
		t.Errorf("name = %q", got)
	}
	if got := UserEmail(ctx, dir); got != "test@test" {
		t.Errorf("email = %q", got)
	}
}
