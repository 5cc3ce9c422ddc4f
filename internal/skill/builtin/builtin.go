// Package builtin provides the skills registered at startup.
package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docmind/internal/models"
	"docmind/internal/skill"
	"docmind/internal/store"
)

type definition struct {
	manifest skill.Manifest
	exec     skill.Executor
}

func definitions() []definition {
	return []definition{
		{
			manifest: skill.Manifest{
				ID:             "summarize",
				DisplayName:    "Summarize",
				Description:    "Condense a document or selection into its key points.",
				Category:       store.CategoryChat,
				TriggerPhrases: []string{"summarize", "summary", "tl;dr", "key points"},
				QuotaCost:      1,
				MinimumTier:    models.TierFree,
			},
			exec: promptExecutor(func(sc skill.Context) string {
				return fmt.Sprintf("Summarize the user's text in %s. Use at most %s sentences.",
					sc.Option("language", "the language of the text"), sc.Option("sentences", "5"))
			}),
		},
		{
			manifest: skill.Manifest{
				ID:             "explain",
				DisplayName:    "Explain",
				Description:    "Explain a passage, term or concept in plain language.",
				Category:       store.CategoryChat,
				TriggerPhrases: []string{"explain", "what does", "what is", "meaning of"},
				QuotaCost:      1,
				MinimumTier:    models.TierFree,
			},
			exec: promptExecutor(func(sc skill.Context) string {
				return "Explain the user's text clearly for a " + sc.Option("audience", "general") +
					" audience. Define any jargon you keep."
			}),
		},
		{
			manifest: skill.Manifest{
				ID:             "polish",
				DisplayName:    "Polish",
				Description:    "Improve grammar, clarity and tone while keeping meaning.",
				Category:       store.CategoryChat,
				TriggerPhrases: []string{"polish", "proofread", "rewrite", "improve writing", "fix grammar"},
				QuotaCost:      1,
				MinimumTier:    models.TierFree,
			},
			exec: promptExecutor(func(sc skill.Context) string {
				return "Rewrite the user's text with correct grammar and a " + sc.Option("tone", "neutral") +
					" tone. Return only the rewritten text."
			}),
		},
		{
			manifest: skill.Manifest{
				ID:             "translate",
				DisplayName:    "Translate",
				Description:    "Translate text into another language.",
				Category:       store.CategoryChat,
				TriggerPhrases: []string{"translate", "translation", "in english", "in chinese"},
				QuotaCost:      1,
				MinimumTier:    models.TierFree,
			},
			exec: promptExecutor(func(sc skill.Context) string {
				return "Translate the user's text into " + sc.Option("target", "English") +
					". Preserve formatting. Return only the translation."
			}),
		},
		{
			manifest: skill.Manifest{
				ID:             "outline",
				DisplayName:    "Outline",
				Description:    "Draft a structured outline with headings for a document.",
				Category:       store.CategoryChat,
				TriggerPhrases: []string{"outline", "structure", "table of contents"},
				QuotaCost:      1,
				MinimumTier:    models.TierFree,
			},
			exec: skill.ExecutorFunc(executeOutline),
		},
		{
			manifest: skill.Manifest{
				ID:             "chart",
				DisplayName:    "Chart",
				Description:    "Turn tabular or numeric data into a chart specification.",
				Category:       store.CategoryImage,
				TriggerPhrases: []string{"chart", "graph", "plot", "visualize"},
				QuotaCost:      2,
				MinimumTier:    models.TierPro,
			},
			exec: skill.ExecutorFunc(executeChart),
		},
	}
}

// Register adds every built-in skill to r.
func Register(r *skill.Registry) error {
	for _, d := range definitions() {
		if err := r.Register(d.manifest, d.exec); err != nil {
			return fmt.Errorf("register builtin %s: %w", d.manifest.ID, err)
		}
	}
	return nil
}

func promptExecutor(system func(sc skill.Context) string) skill.Executor {
	return skill.ExecutorFunc(func(ctx context.Context, sc skill.Context) (skill.Result, error) {
		res, err := complete(ctx, sc, system(sc))
		if err != nil {
			return skill.Result{}, err
		}
		return skill.Result{Success: true, Output: res.Content, Provider: res.ProviderID, Usage: res.Usage}, nil
	})
}

func complete(ctx context.Context, sc skill.Context, system string) (*models.CompletionResult, error) {
	if sc.LLM == nil {
		return nil, errors.New("no completer configured")
	}
	if strings.TrimSpace(sc.Input) == "" {
		return nil, errors.New("input must not be empty")
	}
	return sc.LLM.Complete(ctx, models.RequestConfig{
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: system},
			{Role: models.RoleUser, Content: sc.Input},
		},
		Temperature: models.DefaultTemperature,
	})
}

const outlineSystem = "Produce an outline for the user's topic or document. " +
	"Write one heading per line, prefixing each with '#' repeated for its depth. No other text."

// OutlineItem is one heading of a generated outline.
type OutlineItem struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

func executeOutline(ctx context.Context, sc skill.Context) (skill.Result, error) {
	res, err := complete(ctx, sc, outlineSystem)
	if err != nil {
		return skill.Result{}, err
	}
	items := ParseOutline(res.Content)
	if len(items) == 0 {
		return skill.Result{}, errors.New("model returned no outline headings")
	}
	return skill.Result{Success: true, Output: res.Content, Data: items, Provider: res.ProviderID, Usage: res.Usage}, nil
}

// ParseOutline reads '#'-prefixed heading lines; other lines are ignored.
func ParseOutline(text string) []OutlineItem {
	var items []OutlineItem
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		level := 0
		for level < len(line) && line[level] == '#' {
			level++
		}
		if level == 0 {
			continue
		}
		title := strings.TrimSpace(line[level:])
		if title == "" {
			continue
		}
		items = append(items, OutlineItem{Level: level, Title: title})
	}
	return items
}

const chartSystem = `Convert the user's data into a chart. Reply with a single JSON object and nothing else:
{"type": "bar|line|pie|scatter", "title": string, "labels": [string], "series": [{"name": string, "data": [number]}]}`

// ChartSpec is the structured output of the chart skill.
type ChartSpec struct {
	Type   string        `json:"type"`
	Title  string        `json:"title"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
}

type ChartSeries struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

var chartTypes = map[string]struct{}{"bar": {}, "line": {}, "pie": {}, "scatter": {}}

func executeChart(ctx context.Context, sc skill.Context) (skill.Result, error) {
	res, err := complete(ctx, sc, chartSystem)
	if err != nil {
		return skill.Result{}, err
	}
	spec, err := ParseChartSpec(res.Content)
	if err != nil {
		return skill.Result{}, err
	}
	return skill.Result{Success: true, Output: res.Content, Data: spec, Provider: res.ProviderID, Usage: res.Usage}, nil
}

// ParseChartSpec extracts and validates the JSON object in a model reply,
// tolerating a surrounding markdown code fence.
func ParseChartSpec(text string) (ChartSpec, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ChartSpec{}, errors.New("chart reply contains no JSON object")
	}

	var spec ChartSpec
	if err := json.Unmarshal([]byte(text[start:end+1]), &spec); err != nil {
		return ChartSpec{}, fmt.Errorf("decode chart spec: %w", err)
	}
	spec.Type = strings.ToLower(strings.TrimSpace(spec.Type))
	if _, ok := chartTypes[spec.Type]; !ok {
		return ChartSpec{}, fmt.Errorf("unsupported chart type %q", spec.Type)
	}
	if len(spec.Series) == 0 {
		return ChartSpec{}, errors.New("chart spec has no series")
	}
	for _, s := range spec.Series {
		if len(spec.Labels) > 0 && len(s.Data) != len(spec.Labels) {
			return ChartSpec{}, fmt.Errorf("series %q has %d points for %d labels", s.Name, len(s.Data), len(spec.Labels))
		}
	}
	return spec, nil
}
