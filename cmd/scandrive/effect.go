package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jun/scandrive/internal/scannereffect"
)

func newEffectCmd() *cobra.Command {
	p := scannereffect.Defaults()
	var (
		out        string
		colorspace string
		filter     string
	)
	cmd := &cobra.Command{
		Use:   "effect <file>",
		Short: "Make a document look scanned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Colorspace = scannereffect.Colorspace(colorspace)
			p.ScannyFilter = scannereffect.ScannyFilter(filter)
			if err := p.Validate(); err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.Effect.Process(cmd.Context(), filepath.Base(args[0]), content, p)
			if err != nil {
				if res == nil || !errors.Is(err, scannereffect.ErrDriveHandoff) {
					return err
				}
				log.Printf("WARNING: %v", err)
			}

			dest := out
			if dest == "" {
				dest = res.FileName
			}
			if err := os.WriteFile(dest, res.Content, 0o644); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "wrote %s (%s", dest, res.MIMEType)
			if res.Pages > 0 {
				fmt.Fprintf(w, ", %d page(s)", res.Pages)
			}
			fmt.Fprintln(w, ")")
			if res.Stored != nil {
				fmt.Fprintf(w, "queued %s for Drive sync\n", res.Stored.ID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "output path (defaults to the name returned by the service)")
	f.Float64Var(&p.Brightness, "brightness", p.Brightness, "brightness shift")
	f.Float64Var(&p.Contrast, "contrast", p.Contrast, "contrast factor")
	f.Float64Var(&p.Blur, "blur", p.Blur, "blur radius")
	f.Float64Var(&p.Noise, "noise", p.Noise, "noise amount")
	f.BoolVar(&p.Yellowish, "yellowish", p.Yellowish, "tint pages like aged paper")
	f.IntVar(&p.RenderResolution, "dpi", p.RenderResolution, "render resolution")
	f.StringVar(&colorspace, "colorspace", string(p.Colorspace), "color, grayscale or black_white")
	f.BoolVar(&p.AutoCrop, "auto-crop", p.AutoCrop, "crop to the detected page")
	f.StringVar(&filter, "filter", string(p.ScannyFilter), "none, magic_color or black_white")
	f.BoolVar(&p.GoogleDriveSync, "drive-sync", p.GoogleDriveSync, "also upload the result to Drive")
	return cmd
}
