package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"photo-guess/internal/config"
	"photo-guess/internal/logging"
)

type options struct {
	dir    string
	dotenv string
}

func main() {
	opts := &options{}
	cobra.CheckErr(newCmd(opts).Execute())
}

func newCmd(opts *options) *cobra.Command {
	log := logging.New(os.Getenv("APP_ENV"))

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Manages the photo-guess database schema.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&opts.dir, "dir", filepath.Join("db", "migrations"), "migrations directory")
	cmd.PersistentFlags().StringVar(&opts.dotenv, "dotenv", ".env", "dotenv file providing DATABASE_URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := opts.migrator()
			if err != nil {
				return err
			}
			defer closeMigrator(m, log)
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("database migration failed: %w", err)
			}
			log.Info().Msg("database migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive number, got %q", args[0])
				}
				steps = n
			}
			m, err := opts.migrator()
			if err != nil {
				return err
			}
			defer closeMigrator(m, log)
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("rollback failed: %w", err)
			}
			log.Info().Int("steps", steps).Msg("database migrations rolled back")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty up/down migration pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, down, err := createMigration(opts.dir, args[0], time.Now())
			if err != nil {
				return err
			}
			log.Info().Str("up", up).Str("down", down).Msg("migration created")
			return nil
		},
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return cmd
}

func (o *options) migrator() (*migrate.Migrate, error) {
	if err := config.LoadDotEnv(o.dotenv); err != nil {
		return nil, fmt.Errorf("load %s: %w", o.dotenv, err)
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	m, err := migrate.New("file://"+filepath.ToSlash(o.dir), dsn)
	if err != nil {
		return nil, fmt.Errorf("migration setup failed: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, log zerolog.Logger) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		log.Warn().Err(err).Msg("close migrator")
	}
}

// createMigration writes a timestamped pair of SQL files under dir.
func createMigration(dir, name string, now time.Time) (string, string, error) {
	if name == "" {
		return "", "", errors.New("migration name is required")
	}
	if strings.ContainsAny(name, " /\\") {
		return "", "", errors.New("migration name must not contain spaces or slashes")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create migrations dir: %w", err)
	}

	base := fmt.Sprintf("%s_%s", now.UTC().Format("20060102150405"), name)
	up := filepath.Join(dir, base+".up.sql")
	down := filepath.Join(dir, base+".down.sql")
	if err := writeNew(up, "-- up migration\n"); err != nil {
		return "", "", err
	}
	if err := writeNew(down, "-- down migration\n"); err != nil {
		_ = os.Remove(up)
		return "", "", err
	}
	return up, down, nil
}

func writeNew(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
