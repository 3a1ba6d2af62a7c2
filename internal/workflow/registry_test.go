package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDirParsesPrompts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	content := "name: investigate\ndescription: Investigate a bug report.\nwhen_to_use:\n  - a task mentions a regression\ncontent: |\n  1. Reproduce.\n  2. Bisect.\n"
	if err := os.WriteFile(filepath.Join(dir, "investigate.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := reg.Lookup("investigate")
	if !ok {
		t.Fatal("expected investigate workflow to be found")
	}
	if p.Description != "Investigate a bug report." {
		t.Errorf("description = %q", p.Description)
	}
	if len(p.WhenToUse) != 1 {
		t.Errorf("when_to_use = %v", p.WhenToUse)
	}
}

func TestLoadDirMissingDirYieldsEmptyRegistry(t *testing.T) {
	t.Parallel()
	reg, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatal(err)
	}
	if len(reg.List()) != 0 {
		t.Error("expected empty registry for missing directory")
	}
	if _, ok := reg.Lookup("anything"); ok {
		t.Error("expected lookup miss on empty registry")
	}
}

func TestLoadDirFallsBackToFilenameForName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "triage.yaml"), []byte("description: Triage an incoming task.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Lookup("triage"); !ok {
		t.Error("expected filename-derived name to be used when name: is absent")
	}
}

func TestListIsSortedByName(t *testing.T) {
	t.Parallel()
	reg := NewStatic(
		Prompt{Name: "zeta"},
		Prompt{Name: "alpha"},
		Prompt{Name: "mu"},
	)
	names := []string{}
	for _, p := range reg.List() {
		names = append(names, p.Name)
	}
	want := []string{"alpha", "mu", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List() order = %v, want %v", names, want)
		}
	}
}

func TestStripToolPrefix(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"workflow_investigate": "investigate",
		"guide_onboarding":     "onboarding",
		"bare-name":            "bare-name",
	}
	for in, want := range cases {
		if got := StripToolPrefix(in); got != want {
			t.Errorf("StripToolPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
