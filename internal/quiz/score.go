package quiz

import (
	"fmt"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
)

// AnswerError reports a submission that does not fit the question set.
type AnswerError struct {
	QuestionID string
	Reason     string
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("question %q: %s", e.QuestionID, e.Reason)
}

// Score is the graded result of a submission.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Passed reports whether every question was answered correctly.
func (s Score) Passed() bool {
	return s.Total > 0 && s.Correct == s.Total
}

// Percent returns the score as an integer percentage.
func (s Score) Percent() int {
	if s.Total == 0 {
		return 0
	}
	return s.Correct * 100 / s.Total
}

// Grade scores answers (question ID to chosen option index) against set.
// Unanswered questions count as wrong. Answers naming unknown questions or
// out-of-range options are rejected.
func Grade(set course.QuestionSet, answers map[string]int) (Score, error) {
	byID := make(map[string]course.Question, len(set))
	for _, q := range set {
		byID[q.ID] = q
	}
	for id, choice := range answers {
		q, ok := byID[id]
		if !ok {
			return Score{}, &AnswerError{QuestionID: id, Reason: "not part of this quiz"}
		}
		if choice < 0 || choice >= len(q.Options) {
			return Score{}, &AnswerError{QuestionID: id, Reason: fmt.Sprintf("option %d out of range", choice)}
		}
	}

	s := Score{Total: len(set)}
	for _, q := range set {
		if choice, ok := answers[q.ID]; ok && choice == q.Answer {
			s.Correct++
		}
	}
	return s, nil
}

// PublicQuestion is a question as shown to the learner, without its answer.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Present strips the answer key from set.
func Present(set course.QuestionSet) []PublicQuestion {
	out := make([]PublicQuestion, len(set))
	for i, q := range set {
		out[i] = PublicQuestion{ID: q.ID, Prompt: q.Prompt, Options: q.Options}
	}
	return out
}
