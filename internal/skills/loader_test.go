package skills

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	runtimeskills "github.com/cexll/agentsdk-go/pkg/runtime/skills"
	"github.com/rs/zerolog"
)

func TestLoadSkills_LoadSingleSkill(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	skillPath := writeTestSkillFile(t, root, "atlassian-jira",
		"---\nname: atlassian-jira\ndescription: Jira helper\nkeywords: [issue, jql]\n---\n# Jira\nUse atlastools exec for Jira work.\n")

	registrations, err := LoadSkills(root, zerolog.Nop())
	if err != nil {
		t.Fatalf("load skills: %v", err)
	}
	if len(registrations) != 1 {
		t.Fatalf("registration count = %d, want 1", len(registrations))
	}

	registration := registrations[0]
	if registration.Definition.Name != "atlassian-jira" {
		t.Fatalf("definition name = %q, want atlassian-jira", registration.Definition.Name)
	}
	if registration.Definition.Description != "Jira helper" {
		t.Fatalf("definition description = %q, want Jira helper", registration.Definition.Description)
	}
	if len(registration.Definition.Matchers) != 1 {
		t.Fatalf("matchers count = %d, want 1", len(registration.Definition.Matchers))
	}
	match := registration.Definition.Matchers[0].Match(runtimeskills.ActivationContext{Prompt: "what does this JQL return?"})
	if !match.Matched {
		t.Fatalf("expected keyword matcher to match prompt")
	}

	result, err := registration.Handler.Execute(context.Background(), runtimeskills.ActivationContext{})
	if err != nil {
		t.Fatalf("execute handler: %v", err)
	}
	outputText, ok := result.Output.(string)
	if !ok {
		t.Fatalf("output type = %T, want string", result.Output)
	}
	if outputText != "# Jira\nUse atlastools exec for Jira work." {
		t.Fatalf("unexpected output: %q", outputText)
	}
	if result.Metadata["source_path"] != skillPath {
		t.Fatalf("source_path metadata mismatch: %v", result.Metadata["source_path"])
	}
}

func TestLoadSkills_DirNotFound(t *testing.T) {
	t.Parallel()

	registrations, err := LoadSkills(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	if err != nil {
		t.Fatalf("load skills from missing dir: %v", err)
	}
	if len(registrations) != 0 {
		t.Fatalf("registration count = %d, want 0", len(registrations))
	}
}

func TestLoadSkills_SkipsDirWithoutSkillFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTestSkillFile(t, root, "ok", "---\nname: ok\n---\nbody\n")

	registrations, err := LoadSkills(root, zerolog.Nop())
	if err != nil {
		t.Fatalf("load skills: %v", err)
	}
	if len(registrations) != 1 {
		t.Fatalf("registration count = %d, want 1", len(registrations))
	}
}

func TestLoadSkills_MissingFrontmatter(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestSkillFile(t, root, "broken", "# No frontmatter")

	if _, err := LoadSkills(root, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for missing frontmatter")
	}
}

func TestLoadSkills_DuplicateSkillName(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestSkillFile(t, root, "one", "---\nname: shared\ndescription: first\n---\nfirst body\n")
	writeTestSkillFile(t, root, "two", "---\nname: shared\ndescription: second\n---\nsecond body\n")

	if _, err := LoadSkills(root, zerolog.Nop()); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestLoadSkills_InvalidYAML(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	invalidSkillPath := writeTestSkillFile(t, root, "broken", "---\nname: broken\nkeywords: [search, web\n---\n# Broken\n")
	writeTestSkillFile(t, root, "ok", "---\nname: ok\ndescription: valid\n---\n# OK\n")

	var logBuf bytes.Buffer
	registrations, err := LoadSkills(root, zerolog.New(&logBuf))
	if err != nil {
		t.Fatalf("load skills: %v", err)
	}
	if len(registrations) != 1 || registrations[0].Definition.Name != "ok" {
		t.Fatalf("registrations = %+v, want only ok", registrations)
	}

	output := logBuf.String()
	if !strings.Contains(output, "skip invalid YAML skill") {
		t.Fatalf("expected warning log, got: %q", output)
	}
	if !strings.Contains(output, invalidSkillPath) {
		t.Fatalf("expected warning log to include %q, got: %q", invalidSkillPath, output)
	}
}

func TestLoad_KeywordsNormalized(t *testing.T) {
	t.Parallel()

	path := writeTestSkillFile(t, t.TempDir(), "kw",
		"---\nname: kw\nkeywords:\n  - \" Page \"\n  - PAGE\n  - label\n  - \"  \"\n---\nbody\n")

	skill, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"label", "page"}
	if strings.Join(skill.Keywords, ",") != strings.Join(want, ",") {
		t.Fatalf("keywords = %v, want %v", skill.Keywords, want)
	}
}

func TestLoad_MissingName(t *testing.T) {
	t.Parallel()

	path := writeTestSkillFile(t, t.TempDir(), "anon", "---\ndescription: no name\n---\nbody\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "missing name") {
		t.Fatalf("err = %v, want missing name", err)
	}
}

func writeTestSkillFile(t *testing.T, root, dirName, content string) string {
	t.Helper()

	skillPath := filepath.Join(root, dirName, skillFileName)
	if err := os.MkdirAll(filepath.Dir(skillPath), 0o755); err != nil {
		t.Fatalf("mkdir skill dir: %v", err)
	}
	if err := os.WriteFile(skillPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write skill file: %v", err)
	}
	return skillPath
}
