package attendancesvc

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/masomo/attendance/core/catchup"
)

// Catalog lists the lessons served by the console service.
type Catalog struct {
	Lessons []Lesson `yaml:"lessons"`
}

type Lesson struct {
	ID          string   `yaml:"id"`
	Source      string   `yaml:"source"`
	Host        string   `yaml:"host"`
	DurationSec float64  `yaml:"duration_sec"`
	Rules       Rules    `yaml:"rules"`
	Prompts     []Prompt `yaml:"prompts"`
	Quiz        *Quiz    `yaml:"quiz"`
	// Assignees restricts the lesson to these viewers; empty means everyone.
	Assignees []string `yaml:"assignees"`
}

type Rules struct {
	MinPct            float64 `yaml:"min_pct"`
	AllowFwdWindowSec float64 `yaml:"allow_fwd_window_sec"`
}

type Prompt struct {
	ID    string  `yaml:"id"`
	AtSec float64 `yaml:"at_sec"`
	Text  string  `yaml:"text"`
}

type Quiz struct {
	PassPct   float64    `yaml:"pass_pct"`
	Questions []Question `yaml:"questions"`
}

type Question struct {
	ID      string   `yaml:"id"`
	Text    string   `yaml:"text"`
	Options []string `yaml:"options"`
	Answer  int      `yaml:"answer"`
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, errors.Wrap(err, "opening catalog")
	}
	defer func() { _ = f.Close() }()
	return ParseCatalog(f)
}

// ParseCatalog decodes a YAML catalog; unknown fields are rejected.
func ParseCatalog(r io.Reader) (Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && err != io.EOF {
		return Catalog{}, errors.Wrap(err, "decoding catalog")
	}
	seen := make(map[string]bool, len(cat.Lessons))
	for _, l := range cat.Lessons {
		if seen[l.ID] {
			return Catalog{}, errors.Errorf("duplicate lesson %q", l.ID)
		}
		seen[l.ID] = true
	}
	return cat, nil
}

func (l Lesson) assignedTo(viewerID string) bool {
	if len(l.Assignees) == 0 {
		return true
	}
	for _, id := range l.Assignees {
		if id == viewerID {
			return true
		}
	}
	return false
}

// Token builds the playback token of the lesson. Answer keys are not part of it.
func (l Lesson) Token() catchup.PlaybackToken {
	token := catchup.PlaybackToken{
		LessonID:    l.ID,
		Source:      l.Source,
		Host:        l.Host,
		DurationSec: l.DurationSec,
		Rules:       catchup.Rules{MinPct: l.Rules.MinPct, AllowFwdWindowSec: l.Rules.AllowFwdWindowSec},
	}
	for _, p := range l.Prompts {
		token.Prompts = append(token.Prompts, catchup.Prompt{ID: p.ID, AtSec: p.AtSec, Text: p.Text})
	}
	if l.Quiz != nil {
		quiz := &catchup.Quiz{}
		for _, q := range l.Quiz.Questions {
			quiz.Questions = append(quiz.Questions, catchup.Question{
				ID:      q.ID,
				Text:    q.Text,
				Options: append([]string{}, q.Options...),
			})
		}
		token.Quiz = quiz
	}
	return token
}
