package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/agent-dash/internal/app/dashboards"
	"github.com/PabloGalante/agent-dash/internal/config"
	"github.com/PabloGalante/agent-dash/internal/domain"
)

var dashboardsCmd = &cobra.Command{
	Use:   "dashboards",
	Short: "Manage saved dashboards",
	Long:  `List, export and remove dashboards stored in the configured storage backend.`,
}

var dashboardsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List saved dashboards, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := dashboardService(cmd)
		if err != nil {
			return err
		}
		defer done()

		query, _ := cmd.Flags().GetString("query")
		records, err := svc.List(cmd.Context(), dashboards.ListOptions{Query: query})
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No saved dashboards found.")
			return nil
		}
		for _, rec := range records {
			fmt.Printf("%s  %s  %s\n", rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"), rec.Title)
		}
		return nil
	},
}

var dashboardsExportCmd = &cobra.Command{
	Use:   "export <id> <file>",
	Short: "Write a saved dashboard to an HTML file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := dashboardService(cmd)
		if err != nil {
			return err
		}
		defer done()

		rec, err := svc.Get(cmd.Context(), domain.DocumentID(args[0]))
		if err != nil {
			return err
		}
		return os.WriteFile(args[1], []byte(rec.DocumentBody), 0644)
	},
}

var dashboardsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a saved dashboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, done, err := dashboardService(cmd)
		if err != nil {
			return err
		}
		defer done()

		if err := svc.Delete(cmd.Context(), domain.DocumentID(args[0])); err != nil {
			return err
		}
		fmt.Println("Deleted", args[0])
		return nil
	},
}

func init() {
	dashboardsLsCmd.Flags().String("query", "", "Only show dashboards whose title or description contains this text")
	dashboardsCmd.AddCommand(dashboardsLsCmd, dashboardsExportCmd, dashboardsRmCmd)
}

func dashboardService(cmd *cobra.Command) (*dashboards.Service, func(), error) {
	cfg := config.Load()
	store, closer, err := buildDocumentStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	done := func() {
		if closer != nil {
			closer.Close()
		}
	}
	return dashboards.NewService(store), done, nil
}
