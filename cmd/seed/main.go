package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"veritas/backend/internal/auth"
	"veritas/backend/internal/authz"
	"veritas/backend/internal/config"
	"veritas/backend/internal/logging"
	"veritas/backend/internal/repository"
	"veritas/backend/internal/seed"
	"veritas/backend/pkg/models"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		fixturePath string
		tokenUser   string
		tokenRole   string
	)
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Load roles, the permission matrix, prompts and sample workflows",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, fixturePath, tokenUser, tokenRole)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.yaml")
	cmd.Flags().StringVar(&fixturePath, "file", "", "Seed fixture YAML (defaults to the built-in fixture)")
	cmd.Flags().StringVar(&tokenUser, "token-user", "", "Print a signed API token for this user ID")
	cmd.Flags().StringVar(&tokenRole, "token-role", models.RolePartner, "Role of the printed token")
	return cmd
}

func run(ctx context.Context, configPath, fixturePath, tokenUser, tokenRole string) error {
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fixture, err := loadFixture(fixturePath)
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	sum, err := seed.Run(ctx, store, fixture, authz.DefaultMatrix, logger)
	if err != nil {
		return err
	}
	logger.Info("Seeding complete!",
		"roles", sum.Roles, "permissions", sum.Permissions, "matrices", sum.Matrices,
		"prompts", sum.Prompts, "workflows", sum.Workflows)

	if tokenUser == "" {
		return nil
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set to issue a token")
	}
	if !slices.Contains(models.Roles, tokenRole) {
		return fmt.Errorf("unknown role %q", tokenRole)
	}
	ttl := cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}
	token, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), models.Actor{
		UserID: tokenUser,
		Role:   tokenRole,
		Email:  tokenUser + "@localhost",
	}, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Printf("Bearer token for %s (%s), valid %s:\n%s\n", tokenUser, tokenRole, ttl.Round(time.Minute), token)
	return nil
}

func loadFixture(path string) (*seed.Fixture, error) {
	if path == "" {
		return seed.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return seed.Parse(data)
}
