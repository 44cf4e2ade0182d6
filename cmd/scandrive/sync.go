package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jun/scandrive/internal/config"
	"github.com/jun/scandrive/internal/drivesync"
	"github.com/jun/scandrive/internal/lease"
)

// cliUser owns the sync lease for terminal runs.
const cliUser = "cli"

func newSyncCmd() *cobra.Command {
	var folder string
	cmd := &cobra.Command{
		Use:   "sync [file-id...]",
		Short: "Upload stored files that are missing from the Drive folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices(cmd, func(cfg *config.Config) {
				if folder != "" {
					cfg.Drive.FolderName = folder
					cfg.Drive.TargetFolderID = ""
				}
			})
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			stubs, err := s.Files.ListStubs(ctx)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				keep := make(map[string]bool, len(args))
				for _, id := range args {
					keep[id] = true
				}
				filtered := stubs[:0]
				for _, st := range stubs {
					if keep[st.ID] {
						filtered = append(filtered, st)
					}
				}
				stubs = filtered
			}

			var out drivesync.Outcome
			err = lease.Run(ctx, s.Locker, lease.SyncResource(cliUser), func(ctx context.Context) error {
				var err error
				out, err = s.Drive.SyncAll(ctx, stubs)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d, skipped %d, errored %d\n", out.Uploaded, out.Skipped, out.Errored)
			if out.Errored > 0 {
				return fmt.Errorf("%d file(s) failed to upload", out.Errored)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "Drive folder name (overrides config)")
	return cmd
}
