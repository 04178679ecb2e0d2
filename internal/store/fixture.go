package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"timelined/internal/timeline"
)

// Fixture is a YAML bundle of store contents, used by `timelined seed`.
type Fixture struct {
	Folder        string                      `yaml:"folder"`
	Summaries     []timeline.Summary          `yaml:"summaries"`
	SelectionSets []timeline.SelectionSetMeta `yaml:"selection_sets"`
	Runs          []timeline.RunMeta          `yaml:"runs"`
	Originals     []FixtureOriginal           `yaml:"originals"`
}

// FixtureOriginal pairs an artifact id with its original document text.
type FixtureOriginal struct {
	ArtifactID string `yaml:"artifact_id"`
	Text       string `yaml:"text"`
}

// LoadFixture parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if f.Folder == "" {
		f.Folder = "default"
	}
	return &f, nil
}

// Apply writes the fixture contents into the store.
func (f *Fixture) Apply(ctx context.Context, s *LocalStore) error {
	for _, sum := range f.Summaries {
		if err := s.PutSummary(ctx, f.Folder, sum); err != nil {
			return err
		}
	}
	for _, m := range f.SelectionSets {
		if err := s.PutSelectionSet(ctx, f.Folder, m); err != nil {
			return err
		}
	}
	for _, r := range f.Runs {
		if err := s.PutRun(ctx, f.Folder, r); err != nil {
			return err
		}
	}
	for _, o := range f.Originals {
		if err := s.PutOriginal(ctx, o.ArtifactID, o.Text); err != nil {
			return err
		}
	}
	return nil
}
