package skill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"docmind/internal/models"
)

// ManifestFile is the file each skill directory must contain.
const ManifestFile = "SKILL.md"

// PromptSkill is a skill defined on disk: YAML frontmatter carries the
// manifest and the markdown body is the system prompt.
type PromptSkill struct {
	Manifest Manifest
	Prompt   string
}

// Execute sends the prompt and the caller's input through the provider path.
func (s PromptSkill) Execute(ctx context.Context, sc Context) (Result, error) {
	if sc.LLM == nil {
		return Result{}, errors.New("no completer configured")
	}
	if strings.TrimSpace(sc.Input) == "" {
		return Result{}, errors.New("input must not be empty")
	}
	res, err := sc.LLM.Complete(ctx, models.RequestConfig{
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: s.Prompt},
			{Role: models.RoleUser, Content: sc.Input},
		},
		Temperature: models.DefaultTemperature,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Output: res.Content, Provider: res.ProviderID, Usage: res.Usage}, nil
}

// LoadDir reads dir/<id>/SKILL.md for every subdirectory. A missing dir
// yields no skills; an unreadable or malformed manifest is skipped with a
// warning.
func LoadDir(dir string) ([]PromptSkill, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skills dir %q: %w", dir, err)
	}

	var skills []PromptSkill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name(), ManifestFile)
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			slog.Warn("skipping unreadable skill", "path", p, "err", err)
			continue
		}
		s, err := ParseManifest(data)
		if err != nil {
			slog.Warn("skipping malformed skill", "path", p, "err", err)
			continue
		}
		if s.Manifest.ID == "" {
			s.Manifest.ID = e.Name()
		}
		skills = append(skills, s)
	}
	return skills, nil
}

// ParseManifest splits a SKILL.md document into manifest and prompt body.
func ParseManifest(data []byte) (PromptSkill, error) {
	content := string(data)
	if !strings.HasPrefix(content, "---") {
		return PromptSkill{}, errors.New("missing frontmatter")
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return PromptSkill{}, errors.New("unterminated frontmatter")
	}

	var m Manifest
	if err := yaml.Unmarshal([]byte(rest[:end]), &m); err != nil {
		return PromptSkill{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	prompt := strings.TrimSpace(rest[end+4:])
	if prompt == "" {
		return PromptSkill{}, errors.New("prompt body must not be empty")
	}
	return PromptSkill{Manifest: m, Prompt: prompt}, nil
}

// RegisterDir loads dir and registers every skill found.
func (r *Registry) RegisterDir(dir string) (int, error) {
	skills, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range skills {
		if err := r.Register(s.Manifest, s); err != nil {
			slog.Warn("skipping invalid skill", "skill", s.Manifest.ID, "err", err)
			continue
		}
		n++
	}
	return n, nil
}
