package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/session"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Print the stored user and session identity",
	RunE:  runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.Flags().Bool("json", false, "print the raw session record")
}

func runSession(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := openStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()

	userID, err := store.Get(storage.UserIDKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fmt.Fprintln(out, "user:    (none)")
	case err != nil:
		return fmt.Errorf("failed to read user id: %w", err)
	default:
		fmt.Fprintf(out, "user:    %s\n", userID)
	}

	rec, ok := session.NewManager(store).Load()
	if !ok {
		fmt.Fprintln(out, "session: (none)")
		return nil
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		raw, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(raw))
		return nil
	}

	idle := time.Since(time.UnixMilli(rec.LastActivity)).Round(time.Second)
	state := "active"
	if idle >= session.DefaultTimeout {
		state = "expired"
	}
	fmt.Fprintf(out, "session: %s (%s, idle %s)\n", rec.SessionID, state, idle)
	fmt.Fprintf(out, "started: %s\n", time.UnixMilli(rec.StartTime).UTC().Format(time.RFC3339))
	return nil
}
