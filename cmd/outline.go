package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
)

var outlineCmd = &cobra.Command{
	Use:   "outline",
	Short: "Validate and import course outlines",
}

var outlineValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check outline files against the outline schema and rules",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			o, err := course.ReadFile(path)
			if err == nil {
				err = course.Validate(o)
			}
			if err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s, %d modules)\n", path, o.ID, len(o.Modules))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d outlines invalid", failed, len(args))
		}
		return nil
	},
}

var outlineImportCmd = &cobra.Command{
	Use:   "import <workbook.xlsx>",
	Short: "Convert an authoring workbook into an outline JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		cfg := course.DefaultImportConfig()
		if s, _ := cmd.Flags().GetString("course-sheet"); s != "" {
			cfg.CourseSheet = s
		}
		if s, _ := cmd.Flags().GetString("modules-sheet"); s != "" {
			cfg.ModulesSheet = s
		}
		if s, _ := cmd.Flags().GetString("questions-sheet"); s != "" {
			cfg.QuestionsSheet = s
		}

		res, err := course.ImportWorkbookFile(args[0], cfg)
		if err != nil {
			return err
		}
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "warning: %s\n", e)
		}
		if err := course.Validate(res.Outline); err != nil {
			return err
		}
		raw, err := course.Marshal(res.Outline)
		if err != nil {
			return err
		}

		if out == "" {
			_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
			return err
		}
		if err := os.WriteFile(out, append(raw, '\n'), 0o644); err != nil {
			return fmt.Errorf("write outline: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "imported %s: %d modules, %d questions (%d rows skipped) -> %s\n",
			res.Outline.ID, res.Modules, res.Questions, res.Skipped, out)
		return nil
	},
}

func init() {
	outlineImportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	outlineImportCmd.Flags().String("course-sheet", "", "Name of the course sheet")
	outlineImportCmd.Flags().String("modules-sheet", "", "Name of the modules sheet")
	outlineImportCmd.Flags().String("questions-sheet", "", "Name of the questions sheet")

	outlineCmd.AddCommand(outlineValidateCmd)
	outlineCmd.AddCommand(outlineImportCmd)
}
