package course

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Catalog provides course outlines. The course authoring service is the
// source of truth; the engine only reads from it.
type Catalog interface {
	Outline(ctx context.Context, courseID string) (*Outline, error)
}

// Defaults are the course policy values applied to outlines that do not
// specify their own.
type Defaults struct {
	Cooldown     time.Duration
	QuizDuration time.Duration
}

// DefaultPolicy returns the built-in course policy defaults.
func DefaultPolicy() Defaults {
	return Defaults{Cooldown: DefaultCooldown, QuizDuration: DefaultQuizDuration}
}

// Registry is an in-memory Catalog.
type Registry struct {
	mu       sync.RWMutex
	outlines map[string]*Outline
	defaults Defaults
}

// NewRegistry creates an empty registry.
func NewRegistry(defaults Defaults) *Registry {
	return &Registry{
		outlines: make(map[string]*Outline),
		defaults: defaults,
	}
}

// Add validates the outline and registers it, replacing any outline with
// the same ID.
func (r *Registry) Add(o *Outline) error {
	o.applyDefaults(r.defaults.Cooldown, r.defaults.QuizDuration)
	if err := Validate(o); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outlines[o.ID] = o
	return nil
}

// Outline implements Catalog.
func (r *Registry) Outline(_ context.Context, courseID string) (*Outline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.outlines[courseID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCourse, courseID)
	}
	return o, nil
}

// IDs returns registered course IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.outlines))
	for id := range r.outlines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadDir reads every *.json outline in dir into the registry.
func (r *Registry) LoadDir(dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("list outlines: %w", err)
	}
	sort.Strings(paths)
	for _, p := range paths {
		o, err := ReadFile(p)
		if err != nil {
			return 0, err
		}
		if err := r.Add(o); err != nil {
			return 0, fmt.Errorf("%s: %w", p, err)
		}
	}
	return len(paths), nil
}

// ReadFile parses a single outline file.
func ReadFile(path string) (*Outline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}
	o, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return o, nil
}

// outlineDoc is the JSON form of an Outline.
type outlineDoc struct {
	SchemaVersion string      `json:"schema_version"`
	ID            string      `json:"id"`
	Title         string      `json:"title,omitempty"`
	Cooldown      string      `json:"cooldown,omitempty"`
	QuizDuration  string      `json:"quiz_duration,omitempty"`
	Modules       []moduleDoc `json:"modules"`
}

type moduleDoc struct {
	ID           string          `json:"id"`
	Title        string          `json:"title,omitempty"`
	HasQuiz      bool            `json:"has_quiz"`
	QuestionSets [][]questionDoc `json:"question_sets,omitempty"`
}

type questionDoc struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt,omitempty"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

// Parse decodes and schema-checks an outline document. Policy defaults are
// applied when the outline is added to a Registry.
func Parse(raw []byte) (*Outline, error) {
	if err := validateDocument(raw); err != nil {
		return nil, err
	}

	var doc outlineDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}

	o := &Outline{
		ID:            doc.ID,
		Title:         doc.Title,
		SchemaVersion: doc.SchemaVersion,
	}
	cooldown, err := parseDuration("cooldown", doc.Cooldown)
	if err != nil {
		return nil, err
	}
	if doc.Cooldown != "" {
		o.SetCooldown(cooldown)
	}
	if o.QuizDuration, err = parseDuration("quiz_duration", doc.QuizDuration); err != nil {
		return nil, err
	}

	for _, md := range doc.Modules {
		m := ModuleRef{ID: md.ID, Title: md.Title, HasQuiz: md.HasQuiz}
		for _, sd := range md.QuestionSets {
			set := make(QuestionSet, 0, len(sd))
			for _, qd := range sd {
				set = append(set, Question{
					ID:      qd.ID,
					Prompt:  qd.Prompt,
					Options: qd.Options,
					Answer:  qd.Answer,
				})
			}
			m.QuestionSets = append(m.QuestionSets, set)
		}
		o.Modules = append(o.Modules, m)
	}
	return o, nil
}

// Marshal encodes an outline in the document format read by Parse.
func Marshal(o *Outline) ([]byte, error) {
	doc := outlineDoc{
		SchemaVersion: o.SchemaVersion,
		ID:            o.ID,
		Title:         o.Title,
	}
	if o.Cooldown > 0 || o.cooldownSet {
		doc.Cooldown = o.Cooldown.String()
	}
	if o.QuizDuration > 0 {
		doc.QuizDuration = o.QuizDuration.String()
	}
	for _, m := range o.Modules {
		md := moduleDoc{ID: m.ID, Title: m.Title, HasQuiz: m.HasQuiz}
		for _, set := range m.QuestionSets {
			sd := make([]questionDoc, 0, len(set))
			for _, q := range set {
				sd = append(sd, questionDoc{ID: q.ID, Prompt: q.Prompt, Options: q.Options, Answer: q.Answer})
			}
			md.QuestionSets = append(md.QuestionSets, sd)
		}
		doc.Modules = append(doc.Modules, md)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
