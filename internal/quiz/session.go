package quiz

import (
	"time"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

// Trigger values of a Transition.
const (
	TriggerSubmit     = "submit"
	TriggerAutoSubmit = "auto-submit"
)

// SubmissionAnswers picks the answers a session is graded with. Within
// the deadline plus grace the learner's submitted answers count. Later
// than that, or when the learner sent nothing, the saved draft counts;
// grading a draft after the deadline is an automatic submission.
func SubmissionAnswers(sess *store.QuizSession, submitted map[string]int, now time.Time, grace time.Duration) (answers map[string]int, auto bool) {
	if submitted == nil {
		return sess.Answers, sess.Expired(now)
	}
	if now.After(sess.Deadline.Add(grace)) {
		return sess.Answers, true
	}
	return submitted, false
}
