// Package workflow provides a concrete implementation of the
// WorkflowPrompt registry that the dispatch layer treats as an opaque
// external collaborator: lookup(name) -> Option<Prompt>,
// list() -> [Prompt]. The core task/analysis logic never imports this
// package directly — it is wired in at cmd/mdforge's construction time,
// the same way the teacher keeps its Linear API client out of
// internal/fs and injects it from cmd/linear-fuse instead.
package workflow

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"mdforge/internal/apperr"
)

// Prompt is the opaque metadata object named by a task's Workflow or
// Main-Workflow field.
type Prompt struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Content     string   `yaml:"content"`
	WhenToUse   []string `yaml:"when_to_use"`
}

// Registry is the interface the dispatch layer consumes.
type Registry interface {
	Lookup(name string) (Prompt, bool)
	List() []Prompt
}

// YAMLRegistry loads one Prompt per ".yaml"/".yml" file from a
// directory, the way internal/config loads its single config file —
// generalized here from one file to a directory of them.
type YAMLRegistry struct {
	prompts map[string]Prompt
}

// LoadDir reads every *.yaml/*.yml file directly under dir (no
// recursion) and builds a Registry keyed by each Prompt's Name field. A
// missing dir yields an empty registry rather than an error, matching
// the "unknown workflow names degrade gracefully" rule.
func LoadDir(dir string) (*YAMLRegistry, error) {
	reg := &YAMLRegistry{prompts: map[string]Prompt{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, apperr.Wrap(apperr.IOError, "reading workflow directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, apperr.Wrap(apperr.IOError, "reading workflow file "+entry.Name(), err)
		}
		var p Prompt
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, apperr.Wrap(apperr.ValidationError, "parsing workflow file "+entry.Name(), err)
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(entry.Name(), ext)
		}
		reg.prompts[p.Name] = p
	}
	return reg, nil
}

// NewStatic builds a Registry directly from a slice of prompts, for
// tests and for programmatically-defined default workflows.
func NewStatic(prompts ...Prompt) *YAMLRegistry {
	reg := &YAMLRegistry{prompts: map[string]Prompt{}}
	for _, p := range prompts {
		reg.prompts[p.Name] = p
	}
	return reg
}

func (r *YAMLRegistry) Lookup(name string) (Prompt, bool) {
	p, ok := r.prompts[name]
	return p, ok
}

func (r *YAMLRegistry) List() []Prompt {
	out := make([]Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StripToolPrefix strips the "workflow_" or "guide_" prefix the
// get_workflow/get_guide tool surface accepts before registry lookup
// (spec §6); a name with neither prefix is returned unchanged.
func StripToolPrefix(name string) string {
	switch {
	case strings.HasPrefix(name, "workflow_"):
		return strings.TrimPrefix(name, "workflow_")
	case strings.HasPrefix(name, "guide_"):
		return strings.TrimPrefix(name, "guide_")
	default:
		return name
	}
}
