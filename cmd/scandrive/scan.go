package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jun/scandrive/internal/capture"
	"github.com/jun/scandrive/internal/imaging"
	"github.com/jun/scandrive/internal/paper"
)

func newScanCmd() *cobra.Command {
	var (
		folder   string
		autoCrop bool
	)
	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Store a photo as a scan, optionally straightening the page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			img, _, err := imaging.Decode(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			if autoCrop {
				page, err := capture.Straighten(paper.Detector{}, paper.Bridge{}, img)
				switch {
				case err != nil:
					log.Printf("Auto crop failed, keeping full frame: %v", err)
				case page == nil:
					log.Printf("No page found, keeping full frame")
				default:
					img = page
				}
			}

			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			stub, err := capture.StoreScan(cmd.Context(), s.Files, img, folder, time.Now(), log.Default())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s as %s in %s\n", stub.ID, stub.Name, stub.Folder)
			return nil
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "folder to file the scan under")
	cmd.Flags().BoolVar(&autoCrop, "auto-crop", true, "detect the page and correct perspective")
	return cmd
}
