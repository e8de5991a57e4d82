package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/cms-api/internal/repository"
	"github.com/noah-isme/cms-api/internal/service"
)

var noticesCmd = &cobra.Command{
	Use:   "notices",
	Short: "Notice maintenance",
}

var noticesExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Move published notices past their end date to EXPIRED",
	Long: `Runs the notice expiry sweep once. The sweep is idempotent, so it is
safe to schedule from cron at any interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openRuntime()
		if err != nil {
			return err
		}
		defer env.Close()

		svc := service.NewNoticeService(repository.NewNoticeRepository(env.db), nil, nil, nil, env.logger)
		n, err := svc.ProcessExpiredNotices(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d notice(s)\n", n)
		return nil
	},
}

func init() {
	noticesCmd.AddCommand(noticesExpireCmd)
}
