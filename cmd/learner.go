package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/engine"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/events"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/notify"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/report"
)

// withEngine builds an engine over the configured store and catalog and
// passes it to fn.
func withEngine(cmd *cobra.Command, fn func(*engine.Engine) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer logger.Close()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus(logger)
	notify.Register(bus, notifiers(cfg, logger)...)

	engCfg := engine.DefaultConfig()
	engCfg.Bus = bus
	engCfg.Logger = logger
	engCfg.SubmissionGrace = cfg.Quiz.SubmissionGrace
	return fn(engine.New(catalog, st, engCfg))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var progressCmd = &cobra.Command{
	Use:   "progress <learner> <course>",
	Short: "Show a learner's progress through a course",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		width, _ := cmd.Flags().GetInt("width")
		return withEngine(cmd, func(eng *engine.Engine) error {
			p, err := eng.GetProgress(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprint(cmd.OutOrStdout(), report.Progress(p, width))
			return nil
		})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <learner> <course> <module>",
	Short: "Mark a module without a quiz as completed",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(eng *engine.Engine) error {
			res, err := eng.CompleteModule(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Replayed {
				fmt.Fprintf(out, "%s already completed\n", res.ModuleID)
			} else {
				fmt.Fprintf(out, "%s completed\n", res.ModuleID)
			}
			if res.CertificateIssued {
				fmt.Fprintf(out, "certificate %s issued\n", res.Certificate.ID)
			}
			return nil
		})
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <learner> <course> <module>",
	Short: "Submit quiz answers for a module",
	Long: `Submit quiz answers for a module.

Answers are given as question=option pairs, with options numbered from 0:

  elearn submit alice@example.com onboarding security --answer q1=2 --answer q2=0`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("answer")
		attempt, _ := cmd.Flags().GetInt("attempt")
		answers, err := parseAnswers(pairs)
		if err != nil {
			return err
		}
		return withEngine(cmd, func(eng *engine.Engine) error {
			if attempt == 0 {
				if attempt, err = currentAttempt(cmd.Context(), eng, args[0], args[1], args[2]); err != nil {
					return err
				}
			}
			res, err := eng.SubmitQuiz(cmd.Context(), engine.Submission{
				LearnerID:     args[0],
				CourseID:      args[1],
				ModuleID:      args[2],
				AttemptNumber: attempt,
				Answers:       answers,
			})
			if err != nil {
				if engine.Retryable(err) {
					return fmt.Errorf("%w (retry later)", err)
				}
				return err
			}
			out := cmd.OutOrStdout()
			verdict := "failed"
			if res.Passed {
				verdict = "passed"
			}
			fmt.Fprintf(out, "attempt %d %s: %d/%d correct\n", res.AttemptNumber, verdict, res.Score.Correct, res.Score.Total)
			if res.CooldownRemaining > 0 {
				fmt.Fprintf(out, "next attempt available in %s\n", res.CooldownRemaining.Round(time.Second))
			}
			if res.CertificateIssued {
				fmt.Fprintf(out, "certificate %s issued\n", res.Certificate.ID)
			}
			return nil
		})
	},
}

// parseAnswers turns question=option pairs into an answer sheet.
func parseAnswers(pairs []string) (map[string]int, error) {
	answers := make(map[string]int, len(pairs))
	for _, p := range pairs {
		q, opt, ok := strings.Cut(p, "=")
		if !ok || q == "" {
			return nil, fmt.Errorf("invalid answer %q: want question=option", p)
		}
		n, err := strconv.Atoi(opt)
		if err != nil {
			return nil, fmt.Errorf("invalid answer %q: option must be a number", p)
		}
		answers[q] = n
	}
	return answers, nil
}

func init() {
	progressCmd.Flags().Bool("json", false, "Print progress as JSON")
	progressCmd.Flags().Int("width", 48, "Width of the progress bar")

	submitCmd.Flags().StringArray("answer", nil, "Answer as question=option (repeatable)")
	submitCmd.Flags().Int("attempt", 0, "Expected attempt number; rejects the submission if it is stale (default: the learner's next attempt)")
}

// currentAttempt reads the learner's next attempt number for moduleID.
func currentAttempt(ctx context.Context, eng *engine.Engine, learnerID, courseID, moduleID string) (int, error) {
	p, err := eng.GetProgress(ctx, learnerID, courseID)
	if err != nil {
		return 0, err
	}
	for _, m := range p.Modules {
		if m.ModuleID == moduleID {
			return m.NextAttempt, nil
		}
	}
	return 0, fmt.Errorf("module %q not found in course %q", moduleID, courseID)
}
