package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/settleup/internal/auth"
	"github.com/mmynk/settleup/internal/config"
	"github.com/mmynk/settleup/internal/ledger"
)

func migrateCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			return store.Close()
		},
	}
}

func auditCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "audit GROUP_ID",
		Short: "Check a group's splits against their settlement history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			found, err := ledger.New(store, nil).Audit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(found); err != nil {
				return err
			}
			if len(found) > 0 {
				return fmt.Errorf("%d discrepancies in group %s", len(found), args[0])
			}
			return nil
		},
	}
}

func tokenCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "token MEMBER_ID GROUP_ID...",
		Short: "Issue a bearer token for a member",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration).Generate(args[0], args[1:]...)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
