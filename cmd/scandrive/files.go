package main

import (
	"bytes"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jun/scandrive/internal/gallery"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Browse and manage stored files",
	}
	cmd.AddCommand(newFilesListCmd(), newFilesDeleteCmd(), newFilesPDFCmd(), newFilesExportCmd())
	return cmd
}

func newFilesListCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List files grouped by folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			groups, err := s.Gallery.Workbench(cmd.Context(), query)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, g := range groups {
				fmt.Fprintf(w, "%s/\n", g.Folder)
				for _, f := range g.Files {
					fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", f.ID, f.Name, f.Size, f.CreatedAt.Format(time.DateTime))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "only show files whose name contains this text")
	return cmd
}

func newFilesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-id>...",
		Short: "Delete stored files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Gallery.DeleteSelected(cmd.Context(), gallery.NewSelection(args...))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d of %d\n", n, len(args))
			return err
		},
	}
}

func newFilesPDFCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pdf <file-id>...",
		Short: "Combine selected images into one PDF",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var buf bytes.Buffer
			pages, err := s.Gallery.ConvertToPDF(cmd.Context(), gallery.NewSelection(args...), &buf)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d page(s) to %s\n", pages, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "scans.pdf", "output PDF path")
	return cmd
}

func newFilesExportCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export <file-id>...",
		Short: "Write selected files to a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			paths, err := s.Gallery.ExportSelected(cmd.Context(), gallery.NewSelection(args...), dir)
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "destination directory")
	return cmd
}
