package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/cms-api/internal/repository"
	"github.com/noah-isme/cms-api/internal/service"
	"github.com/noah-isme/cms-api/pkg/config"
	"github.com/noah-isme/cms-api/pkg/metadata"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User maintenance",
}

var usersSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the metadata server's employee roster into users",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openRuntime()
		if err != nil {
			return err
		}
		defer env.Close()

		client := metadata.NewClient(env.cfg.Metadata.ServerURL, env.cfg.Metadata.APIKey)
		svc := service.NewSyncService(client, repository.NewUserRepository(env.db), env.cfg.Metadata.PageSize, env.logger)
		result, err := svc.SyncEmployees(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created=%d deactivated=%d unchanged=%d\n", result.Created, result.Deactivated, result.Unchanged)
		return nil
	},
}

var usersPruneCmd = &cobra.Command{
	Use:   "prune-inactive",
	Short: "Delete every inactive user",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openRuntime()
		if err != nil {
			return err
		}
		defer env.Close()

		svc := service.NewUserService(repository.NewUserRepository(env.db), nil, env.logger)
		n, err := svc.RemoveInactiveUsers(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d user(s)\n", n)
		return nil
	},
}

var departmentsCmd = &cobra.Command{
	Use:   "departments",
	Short: "List departments known to the metadata server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate()
		if err != nil {
			return err
		}
		client := metadata.NewClient(cfg.Metadata.ServerURL, cfg.Metadata.APIKey)
		out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(out, "ID\tCODE\tNAME\tMANAGER\tSTATUS")
		for page := 1; ; page++ {
			result, err := client.ListDepartments(cmd.Context(), page, cfg.Metadata.PageSize)
			if err != nil {
				return err
			}
			for _, d := range result.Data {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Code, d.Name, d.ManagerID, d.Status)
			}
			if !result.HasNext() || len(result.Data) == 0 {
				break
			}
		}
		return out.Flush()
	},
}

func init() {
	usersCmd.AddCommand(usersSyncCmd, usersPruneCmd, departmentsCmd)
}
