package course

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// SupportedSchemaMajor is the outline schema major version this build reads.
const SupportedSchemaMajor = "v1"

// Validate performs structural checks on an outline and returns a combined
// error describing every problem found, or nil if the outline is usable.
func Validate(o *Outline) error {
	var errs []string

	if strings.TrimSpace(o.ID) == "" {
		errs = append(errs, "course ID is empty")
	}

	if v := canonicalVersion(o.SchemaVersion); !semver.IsValid(v) {
		errs = append(errs, fmt.Sprintf("invalid schema_version %q", o.SchemaVersion))
	} else if semver.Major(v) != SupportedSchemaMajor {
		errs = append(errs, fmt.Sprintf("unsupported schema_version %q (want %s.x.x)", o.SchemaVersion, SupportedSchemaMajor))
	}

	if o.Cooldown < 0 {
		errs = append(errs, fmt.Sprintf("cooldown must be >= 0, got %s", o.Cooldown))
	}
	if o.QuizDuration < 0 {
		errs = append(errs, fmt.Sprintf("quiz_duration must be >= 0, got %s", o.QuizDuration))
	}

	if len(o.Modules) == 0 {
		errs = append(errs, "course has no modules")
	}

	seen := make(map[string]bool, len(o.Modules))
	for i, m := range o.Modules {
		prefix := fmt.Sprintf("module %d (%q)", i, m.ID)
		if strings.TrimSpace(m.ID) == "" {
			errs = append(errs, fmt.Sprintf("module %d: empty ID", i))
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Sprintf("duplicate module ID: %q", m.ID))
		}
		seen[m.ID] = true

		if !m.HasQuiz {
			if len(m.QuestionSets) > 0 {
				errs = append(errs, fmt.Sprintf("%s: has question sets but has_quiz is false", prefix))
			}
			continue
		}
		if len(m.QuestionSets) == 0 {
			errs = append(errs, fmt.Sprintf("%s: has_quiz is true but no question sets are defined", prefix))
		}
		for si, set := range m.QuestionSets {
			errs = append(errs, validateSet(fmt.Sprintf("%s set %d", prefix, si), set)...)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("outline %q validation failed:\n  %s", o.ID, strings.Join(errs, "\n  "))
	}
	return nil
}

func validateSet(prefix string, set QuestionSet) []string {
	var errs []string
	if len(set) == 0 {
		errs = append(errs, fmt.Sprintf("%s: empty question set", prefix))
	}
	ids := make(map[string]bool, len(set))
	for _, q := range set {
		if q.ID == "" {
			errs = append(errs, fmt.Sprintf("%s: question with empty ID", prefix))
		}
		if ids[q.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate question ID %q", prefix, q.ID))
		}
		ids[q.ID] = true
		if len(q.Options) < 2 {
			errs = append(errs, fmt.Sprintf("%s question %q: needs at least 2 options, got %d", prefix, q.ID, len(q.Options)))
		}
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			errs = append(errs, fmt.Sprintf("%s question %q: answer index %d out of range", prefix, q.ID, q.Answer))
		}
	}
	return errs
}

// canonicalVersion accepts "1.2.0" as well as "v1.2.0".
func canonicalVersion(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
