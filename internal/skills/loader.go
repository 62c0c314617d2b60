// Package skills reads and writes SKILL.md packages: YAML frontmatter
// followed by markdown instructions for an agent.
package skills

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
	runtimeskills "github.com/cexll/agentsdk-go/pkg/runtime/skills"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const skillFileName = "SKILL.md"

var errInvalidSkillYAML = errors.New("invalid skill YAML frontmatter")

type frontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords,omitempty"`
}

// Skill is a parsed SKILL.md.
type Skill struct {
	Name        string
	Description string
	Keywords    []string
	Body        string
	Path        string
}

// Load parses one SKILL.md file. The frontmatter must be valid YAML and name
// the skill.
func Load(path string) (Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, fmt.Errorf("read skill %q: %w", path, err)
	}
	meta, body, err := parseFrontmatter(content)
	if err != nil {
		return Skill{}, fmt.Errorf("parse skill %q: %w", path, err)
	}
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		return Skill{}, fmt.Errorf("parse skill %q: missing name", path)
	}
	return Skill{
		Name:        name,
		Description: strings.TrimSpace(meta.Description),
		Keywords:    sanitizeKeywords(meta.Keywords),
		Body:        strings.TrimSpace(body),
		Path:        path,
	}, nil
}

// LoadSkills reads every <dir>/<skill>/SKILL.md and turns it into a runtime
// skill registration. A missing dir yields no skills. Files with broken YAML
// are skipped with a warning; other parse errors are fatal.
func LoadSkills(skillDir string, log zerolog.Logger) ([]api.SkillRegistration, error) {
	skillDir = strings.TrimSpace(skillDir)
	if skillDir == "" {
		return nil, nil
	}

	info, err := os.Stat(skillDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat skills dir %q: %w", skillDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skills path is not a directory: %s", skillDir)
	}

	entries, err := os.ReadDir(skillDir)
	if err != nil {
		return nil, fmt.Errorf("read skills dir %q: %w", skillDir, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	registrations := make([]api.SkillRegistration, 0, len(entries))
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		skillPath := filepath.Join(skillDir, entry.Name(), skillFileName)
		skill, err := Load(skillPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case errors.Is(err, errInvalidSkillYAML):
			log.Warn().Str("component", "skills").Str("path", skillPath).Err(err).Msg("skip invalid YAML skill")
			continue
		case err != nil:
			return nil, err
		}

		if prevPath, exists := seen[skill.Name]; exists {
			return nil, fmt.Errorf("duplicate skill name %q in %s (already in %s)", skill.Name, skillPath, prevPath)
		}
		seen[skill.Name] = skillPath
		registrations = append(registrations, registration(skill))
	}

	return registrations, nil
}

func registration(skill Skill) api.SkillRegistration {
	def := runtimeskills.Definition{Name: skill.Name, Description: skill.Description}
	if len(skill.Keywords) > 0 {
		def.Matchers = []runtimeskills.Matcher{runtimeskills.KeywordMatcher{Any: skill.Keywords}}
	}

	handler := runtimeskills.HandlerFunc(func(context.Context, runtimeskills.ActivationContext) (runtimeskills.Result, error) {
		return runtimeskills.Result{
			Skill:  skill.Name,
			Output: skill.Body,
			Metadata: map[string]any{
				"system_prompt": skill.Body,
				"source_path":   skill.Path,
			},
		}, nil
	})
	return api.SkillRegistration{Definition: def, Handler: handler}
}

func parseFrontmatter(content []byte) (frontmatter, string, error) {
	text := strings.TrimPrefix(string(content), "\uFEFF")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return frontmatter{}, "", errors.New("missing YAML frontmatter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return frontmatter{}, "", errors.New("missing closing frontmatter separator")
	}

	var meta frontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &meta); err != nil {
		return frontmatter{}, "", fmt.Errorf("%w: %v", errInvalidSkillYAML, err)
	}
	return meta, strings.Join(lines[end+1:], "\n"), nil
}

func sanitizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	var out []string
	for _, keyword := range keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	sort.Strings(out)
	return out
}
