package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prodtrack/prodtrack-api/internal/config"
	"github.com/prodtrack/prodtrack-api/internal/database"
	"github.com/prodtrack/prodtrack-api/internal/user"
)

var errDownNotConfirmed = errors.New("refusing to roll back without --yes")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the ProdTrack database schema",
		Long:         "Apply or roll back the embedded schema migrations and run maintenance tasks against PostgreSQL.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("database-url", "", "postgres:// URL (defaults to the DB_* environment)")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runUp,
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all data)",
		RunE:  runDown,
	}
	downCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE:  runVersion,
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup-resets",
		Short: "Clear expired password reset tokens",
		RunE:  runCleanupResets,
	}

	rootCmd.AddCommand(upCmd, downCmd, versionCmd, cleanupCmd)
	return rootCmd
}

func databaseURL(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("database-url"); u != "" {
		return u
	}
	cfg := config.LoadDatabase()
	return cfg.URL()
}

func withMigrator(cmd *cobra.Command, fn func(*database.Migrator) error) error {
	migrator, err := database.NewMigrator(databaseURL(cmd))
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			cmd.PrintErrf("failed to close migrator: %v\n", err)
		}
	}()
	return fn(migrator)
}

func runUp(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m *database.Migrator) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return err
		}
		return printVersion(cmd, m)
	})
}

func runDown(cmd *cobra.Command, _ []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return errDownNotConfirmed
	}

	return withMigrator(cmd, func(m *database.Migrator) error {
		cmd.Println("Rolling back migrations...")
		if err := m.Down(); err != nil {
			return err
		}
		return printVersion(cmd, m)
	})
}

func runVersion(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m *database.Migrator) error {
		return printVersion(cmd, m)
	})
}

func printVersion(cmd *cobra.Command, m *database.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("Schema version: %d (dirty)\n", version)
		return nil
	}
	cmd.Printf("Schema version: %d\n", version)
	return nil
}

func runCleanupResets(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	sqlDB, err := sql.Open("postgres", databaseURL(cmd))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db := database.NewBunDB(sqlDB)
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	n, err := user.NewRepository(db).ClearExpiredResetTokens(ctx, time.Now())
	if err != nil {
		return err
	}
	cmd.Printf("Cleared %d expired reset tokens\n", n)
	return nil
}
