package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/agent-dash/internal/config"
	"github.com/PabloGalante/agent-dash/internal/domain"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect conversation snapshots in Redis",
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := redisStore(config.Load())
		defer store.Close()

		ids, err := store.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No active sessions found.")
			return nil
		}
		for _, id := range ids {
			sess, err := store.GetSession(cmd.Context(), id)
			if err != nil {
				fmt.Printf("- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("- %s  step=%s  messages=%d  updated=%s\n",
				id, sess.State.Step, len(sess.Messages), sess.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a session snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := redisStore(config.Load())
		defer store.Close()
		return store.DeleteSession(cmd.Context(), domain.SessionID(args[0]))
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsLsCmd, sessionsRmCmd)
}
