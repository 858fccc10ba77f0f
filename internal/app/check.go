package app

import (
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/config"
	"github.com/samvad-hq/samvad-article-pipeline/internal/schedule"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/publishers"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/sources"
)

// SourcePlan is how one configured source will be crawled. Next is zero when
// the schedule is disabled.
type SourcePlan struct {
	Name    string
	Type    string
	Trigger string
	Next    time.Time
}

// ConfigCheck summarizes a validated configuration.
type ConfigCheck struct {
	Sources    []SourcePlan
	Publishers []string
}

// CheckConfig loads both registries and resolves every schedule against now
// in the configured timezone. Nothing is opened or dialled.
func CheckConfig(cfg *config.Config, now time.Time) (ConfigCheck, error) {
	var out ConfigCheck
	if cfg == nil {
		return out, fmt.Errorf("config must not be nil")
	}

	if err := sources.LoadSources(cfg.SourcesFile); err != nil {
		return out, fmt.Errorf("load sources registry: %w", err)
	}
	now = now.In(cfg.Location())
	for _, src := range sources.Sources() {
		trigger, err := schedule.Translate(src.Schedule)
		if err != nil {
			return out, fmt.Errorf("schedule for %q: %w", src.Name, err)
		}
		plan := SourcePlan{Name: src.Name, Type: src.Type, Trigger: string(trigger)}
		if trigger != schedule.Disabled {
			if plan.Next, err = schedule.NextFire(trigger, now); err != nil {
				return out, fmt.Errorf("schedule for %q: %w", src.Name, err)
			}
		}
		out.Sources = append(out.Sources, plan)
	}

	reg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return out, fmt.Errorf("load publishers registry: %w", err)
	}
	articles := false
	for _, p := range reg.Enabled() {
		out.Publishers = append(out.Publishers, p.ID)
		articles = articles || p.Accepts(publishers.KindArticles)
	}
	if len(out.Publishers) == 0 {
		return out, fmt.Errorf("no publishers configured")
	}
	if !articles {
		return out, fmt.Errorf("no enabled publisher subscribes to %q events", publishers.KindArticles)
	}
	return out, nil
}
