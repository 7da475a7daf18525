package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/jobs"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)
			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			v, err := db.MigrationVersion(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("database migrated", "driver", cfg.Database.Driver, "version", v)
			return nil
		},
	}
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in achievement catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)
			c, err := newCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			catalog, err := c.engine.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d achievements in catalog\n", len(catalog))
			return nil
		},
	}
}

func reconcileCommand() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check cached point balances against the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)
			c, err := newCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			s := jobs.NewScheduler(jobs.Config{RepairMismatches: repair}, c.points, nil, logger)
			n := s.RunReconcile(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%d mismatched balances\n", n)
			if n > 0 && !repair {
				return fmt.Errorf("%d balances out of step with the ledger; rerun with --repair", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "rewrite mismatched balances from the ledger")
	return cmd
}

func tokenCommand() *cobra.Command {
	var (
		userID   int64
		username string
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mustConfig(cmd)
			logger := commonRun(cfg)
			if err := cfg.RequireSecret(); err != nil {
				return err
			}
			if !auth.ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			c, err := newCore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			if username != "" {
				u, err := c.community.RegisterUser(cmd.Context(), username)
				if err != nil {
					return err
				}
				userID = u.ID
			}
			u, err := c.community.User(cmd.Context(), userID)
			if err != nil {
				return err
			}

			tokens, err := auth.NewTokens(cfg.Auth.TokenSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			tok, err := tokens.Issue(auth.AuthContext{UserID: u.ID, Username: u.Username, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "id of an existing user")
	cmd.Flags().StringVar(&username, "create", "", "register a new user with this name and issue a token for it")
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "role claim: USER, ORGANIZER or SUPERADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}
