package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/admin"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/cfg"
)

const defaultAdminAddr = "127.0.0.1:9464"

func addAdminFlags(cmd *cobra.Command, addr, secret *string) {
	cmd.Flags().StringVar(addr, "addr", defaultAdminAddr, "Admin address of the running daemon")
	cmd.Flags().StringVar(secret, "secret", "", "Admin secret (default $"+cfg.EnvAdminSecret+")")
}

func adminClient(addr, secret string) (*admin.Client, error) {
	if secret == "" {
		secret = os.Getenv(cfg.EnvAdminSecret)
	}
	return admin.NewClient(addr, secret)
}

func newStatusCommand() *cobra.Command {
	var addr, secret string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := adminClient(addr, secret)
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
	addAdminFlags(cmd, &addr, &secret)
	return cmd
}

func newInvalidateCommand() *cobra.Command {
	var addr, secret string
	cmd := &cobra.Command{
		Use:   "invalidate <entity>",
		Short: "Mark every cached query of an entity stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := adminClient(addr, secret)
			if err != nil {
				return err
			}
			res, err := client.Invalidate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d keys for %s\n", res.Keys, res.Entity)
			return nil
		},
	}
	addAdminFlags(cmd, &addr, &secret)
	return cmd
}
