package skills

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/atlastools/internal/catalog"
	"github.com/stellarlinkco/atlastools/internal/tool"
)

// AllToolsSkill names the skill that covers every category.
const AllToolsSkill = "atlassian-skills"

// SkillName is the directory and skill name for one category.
func SkillName(category string) string {
	return "atlassian-" + category
}

// Build returns one skill per catalog category followed by the combined
// skill.
func Build(cat *catalog.Catalog) []Skill {
	var out []Skill
	for _, category := range cat.Categories() {
		tools := cat.ListTools(category)
		out = append(out, Skill{
			Name:        SkillName(category),
			Description: fmt.Sprintf("%s tools (%d) run through the atlastools CLI with schema-validated JSON input.", titleCase(category), len(tools)),
			Keywords:    keywordsFor(category, tools),
			Body:        renderBody(cat, titleCase(category)+" tools", tools),
		})
	}

	all := cat.ListTools("")
	return append(out, Skill{
		Name:        AllToolsSkill,
		Description: fmt.Sprintf("All Atlassian tools (%d) for Jira and Confluence.", len(all)),
		Keywords:    append([]string{"atlassian"}, cat.Categories()...),
		Body:        renderBody(cat, "Atlassian tools", all),
	})
}

// Write renders every skill from Build into dir, replacing existing SKILL.md
// files. It returns the written paths.
func Write(dir string, cat *catalog.Catalog) ([]string, error) {
	var paths []string
	for _, skill := range Build(cat) {
		path, err := writeSkill(dir, skill)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeSkill(dir string, skill Skill) (string, error) {
	data, err := Render(skill)
	if err != nil {
		return "", err
	}
	skillDir := filepath.Join(dir, skill.Name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return "", fmt.Errorf("create skill dir: %w", err)
	}
	path := filepath.Join(skillDir, skillFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write skill %q: %w", path, err)
	}
	return path, nil
}

// Render produces the SKILL.md bytes for skill.
func Render(skill Skill) ([]byte, error) {
	meta, err := yaml.Marshal(frontmatter{
		Name:        skill.Name,
		Description: skill.Description,
		Keywords:    skill.Keywords,
	})
	if err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n")
	buf.WriteString(strings.TrimSpace(skill.Body))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

func renderBody(cat *catalog.Catalog, title string, tools []catalog.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	sb.WriteString("Run a tool with `atlastools exec <tool> --input '<json>'`. ")
	sb.WriteString("Inspect its schema first with `atlastools schema <tool>`. ")
	sb.WriteString("Output is a JSON envelope; a non-zero exit status means the call or the remote operation failed.\n\n")
	sb.WriteString("Credentials come from JIRA_URL, JIRA_USERNAME, JIRA_API_TOKEN and the matching CONFLUENCE_ variables.\n\n")
	sb.WriteString("## Tools\n")

	for _, s := range tools {
		fmt.Fprintf(&sb, "\n### %s\n\n%s\n", s.Name, s.Description)
		info, err := cat.GetToolInfo(s.Name)
		if err != nil {
			continue
		}
		if req := info.InputSchema.Required; len(req) > 0 {
			fmt.Fprintf(&sb, "\nRequired: %s\n", strings.Join(req, ", "))
		}
		example, err := json.Marshal(tool.MinimalInput(info.InputSchema))
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "\n```\natlastools exec %s --input '%s'\n```\n", s.Name, example)
	}
	return sb.String()
}

// keywordsFor collects the category plus the distinct words of its tool
// names, e.g. "issue" and "search" from jira_get_issue and jira_search.
func keywordsFor(category string, tools []catalog.Summary) []string {
	words := []string{category}
	for _, s := range tools {
		for _, w := range strings.Split(strings.TrimPrefix(s.Name, category+"_"), "_") {
			if len(w) > 3 {
				words = append(words, w)
			}
		}
	}
	return sanitizeKeywords(words)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
