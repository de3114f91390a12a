package aggregate

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := loadCatalog()
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}
	return catalog
}

func TestFilterIgnorePathSegments(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.IgnorePaths = []string{"tests"}
	f := newFilter(opts, testCatalog(t), zap.NewNop())

	cases := []struct {
		rel      string
		isDir    bool
		excluded bool
	}{
		{"tests", true, true},
		{"tests/foo.py", false, true},
		{"pkg/tests/bar.py", false, true},
		{"src/bar.py", false, false},
		{"testsuite/x.py", false, false},
	}
	for _, tc := range cases {
		if got := f.Excluded(tc.rel, tc.isDir); got != tc.excluded {
			t.Errorf("Excluded(%q) = %v, want %v", tc.rel, got, tc.excluded)
		}
	}
}

func TestFilterIgnorePathPrefix(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.IgnorePaths = []string{"src/gen"}
	f := newFilter(opts, testCatalog(t), zap.NewNop())

	if !f.Excluded("src/gen", true) {
		t.Error("src/gen should be excluded")
	}
	if !f.Excluded("src/gen/types.py", false) {
		t.Error("src/gen/types.py should be excluded")
	}
	if f.Excluded("src/genx.py", false) {
		t.Error("src/genx.py should not be excluded")
	}
}

func TestFilterAlwaysExcludesGitDir(t *testing.T) {
	t.Parallel()

	f := newFilter(DefaultOptions(), testCatalog(t), zap.NewNop())
	if !f.Excluded(".git", true) {
		t.Error(".git should be excluded")
	}
	if !f.Excluded("vendor/.git/config", false) {
		t.Error("nested .git content should be excluded")
	}
}

func TestFilterGitignorePatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	patterns := filepath.Join(dir, "patterns")
	content := "*.log\n!keep.log\nbuild/\n"
	if err := os.WriteFile(patterns, []byte(content), 0o644); err != nil {
		t.Fatalf("writing pattern file: %v", err)
	}

	opts := DefaultOptions()
	opts.GitignorePath = patterns
	f := newFilter(opts, testCatalog(t), zap.NewNop())

	if !f.Excluded("app.log", false) {
		t.Error("app.log should match *.log")
	}
	if f.Excluded("keep.log", false) {
		t.Error("keep.log should be re-included by negation")
	}
	if !f.Excluded("build", true) {
		t.Error("build directory should match build/")
	}
	if f.Excluded("build", false) {
		t.Error("a plain file named build should not match the directory-only pattern")
	}
}

func TestFilterUnreadablePatternFileDegrades(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.GitignorePath = filepath.Join(t.TempDir(), "missing")
	f := newFilter(opts, testCatalog(t), zap.NewNop())

	if f.Excluded("anything.py", false) {
		t.Error("missing pattern file must degrade to no patterns, not exclusion")
	}
}

func TestFilterWithRootGitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("secret/\n"), 0o644); err != nil {
		t.Fatalf("writing .gitignore: %v", err)
	}

	base := newFilter(DefaultOptions(), testCatalog(t), zap.NewNop())
	scoped := base.withRootGitignore(root)

	if !scoped.Excluded("secret", true) {
		t.Error("scoped filter should apply the root's .gitignore")
	}
	if base.Excluded("secret", true) {
		t.Error("root patterns must not leak into the base filter")
	}
}

func TestFilterRootGitignoreOverridesGlobal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "global-patterns")
	if err := os.WriteFile(global, []byte("*.log\n"), 0o644); err != nil {
		t.Fatalf("writing global patterns: %v", err)
	}
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("!keep.log\n"), 0o644); err != nil {
		t.Fatalf("writing .gitignore: %v", err)
	}

	opts := DefaultOptions()
	opts.GitignorePath = global
	f := newFilter(opts, testCatalog(t), zap.NewNop()).withRootGitignore(root)

	if !f.Excluded("app.log", false) {
		t.Error("app.log should still match the global *.log")
	}
	if f.Excluded("keep.log", false) {
		t.Error("keep.log negated by the later (root) pattern source should be re-included")
	}
}

func TestShouldIncludeExtensionAllowList(t *testing.T) {
	t.Parallel()

	f := newFilter(DefaultOptions(), testCatalog(t), zap.NewNop())

	if !f.ShouldInclude("src/main.py", false) {
		t.Error("main.py should be included")
	}
	if f.ShouldInclude("image.png", false) {
		t.Error("image.png should be rejected by the allow-list")
	}
	if !f.ShouldInclude("assets", true) {
		t.Error("directories are never excluded by extension")
	}
}
