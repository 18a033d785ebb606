package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/config"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/course"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/logging"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "elearn",
	Short:        "Course progression engine",
	Long:         "elearn: sequential module unlocking, quiz attempts with cooldown and course certificates.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a dotenv file; ignored if missing")
	rootCmd.PersistentFlags().String("driver", "", "Database driver: sqlite or postgres (overrides ELEARN_DATABASE_DRIVER)")
	rootCmd.PersistentFlags().String("db", "", "SQLite file or Postgres DSN (overrides ELEARN_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("courses", "", "Directory of course outline JSON files (overrides ELEARN_COURSES_DIR)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(outlineCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the configuration, with command-line flags taking
// precedence over the environment and config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(config.Options{ConfigFile: file, EnvFile: envFile})
	if err != nil {
		return nil, err
	}
	if d, _ := cmd.Flags().GetString("driver"); d != "" {
		cfg.Database.Driver = d
	}
	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if dir, _ := cmd.Flags().GetString("courses"); dir != "" {
		cfg.Courses.Dir = dir
	}
	return cfg, cfg.Validate()
}

// resolveDSN returns the database DSN, falling back to the default SQLite
// path.
func resolveDSN(cfg *config.Config) (string, error) {
	if cfg.Database.DSN != "" {
		if cfg.Database.Driver == store.DriverSQLite {
			return cfg.Database.DSN, store.EnsureDir(cfg.Database.DSN)
		}
		return cfg.Database.DSN, nil
	}
	return store.DefaultDBPath()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	dsn, err := resolveDSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	st, err := store.OpenDriver(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// loadCatalog reads the outline directory. A missing directory yields an
// empty catalog with a warning.
func loadCatalog(cfg *config.Config) (*course.Registry, error) {
	reg := course.NewRegistry(course.Defaults{
		Cooldown:     cfg.Courses.Cooldown,
		QuizDuration: cfg.Courses.QuizDuration,
	})
	if _, err := os.Stat(cfg.Courses.Dir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: course directory %s not found; no courses loaded\n", cfg.Courses.Dir)
		return reg, nil
	}
	n, err := reg.LoadDir(cfg.Courses.Dir)
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	if n == 0 {
		fmt.Fprintf(os.Stderr, "warning: no course outlines in %s\n", cfg.Courses.Dir)
	}
	return reg, nil
}

func newLogger(cfg *config.Config) *logging.GommonLogger {
	return logging.New(logging.Config{
		Level:        cfg.Log.Level,
		RollbarToken: cfg.Log.RollbarToken,
		Environment:  cfg.Env,
		CodeVersion:  version,
	})
}
