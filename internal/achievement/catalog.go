package achievement

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/huddle/internal/model"
)

// Catalog titles referenced by the trigger table.
const (
	TitleFirstMessage        = "First Message"
	TitleProfileComplete     = "Profile Complete"
	TitleFirstActivity       = "Joined an Activity"
	TitleFirstGroup          = "Joined a Group"
	TitleOrganizer           = "Organizer"
	TitleFrequentParticipant = "Frequent Participant"
	TitleExpert              = "Expert"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Achievements []struct {
		Title        string `yaml:"title"`
		Description  string `yaml:"description"`
		PointsReward int64  `yaml:"points_reward"`
		Icon         string `yaml:"icon"`
	} `yaml:"achievements"`
}

// DefaultCatalog returns the built-in achievement definitions.
func DefaultCatalog() ([]model.Achievement, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(data []byte) ([]model.Achievement, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse achievement catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Achievements))
	out := make([]model.Achievement, 0, len(f.Achievements))
	for _, a := range f.Achievements {
		if a.Title == "" {
			return nil, fmt.Errorf("achievement catalog: entry without title")
		}
		if seen[a.Title] {
			return nil, fmt.Errorf("achievement catalog: duplicate title %q", a.Title)
		}
		if a.PointsReward < 0 {
			return nil, fmt.Errorf("achievement catalog: %q has negative reward", a.Title)
		}
		seen[a.Title] = true
		out = append(out, model.Achievement{
			Title:        a.Title,
			Description:  a.Description,
			PointsReward: a.PointsReward,
			Icon:         a.Icon,
		})
	}
	return out, nil
}
