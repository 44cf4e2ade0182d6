package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jun/scandrive/internal/app"
	"github.com/jun/scandrive/internal/config"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scandrive: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scandrive",
		Short: "Scan documents and sync them to Google Drive",
		Long: `scandrive stores document scans, runs them through the scanner effect
service and uploads them to a Google Drive folder.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SCANDRIVE_CONFIG"), "YAML config file")
	cmd.AddCommand(
		newAuthCmd(),
		newSyncCmd(),
		newFilesCmd(),
		newScanCmd(),
		newEffectCmd(),
	)
	return cmd
}

// loadServices reads the config, applies overrides and wires the services.
// The Drive token source prompts on the terminal when no refresh token is stored.
func loadServices(cmd *cobra.Command, overrides ...func(*config.Config)) (*app.Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	s, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Drive.ServiceAccountJSON == "" {
		prompt := terminalPrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
		s.Tokens.SetTokenSource(s.Auth.InteractiveSource(context.WithoutCancel(cmd.Context()), uuid.NewString(), prompt))
	}
	return s, nil
}

func terminalPrompt(in io.Reader, out io.Writer) func(string) (string, error) {
	return func(authURL string) (string, error) {
		fmt.Fprintf(out, "Open this URL in your browser and grant access:\n\n  %s\n\nPaste the authorization code: ", authURL)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read authorization code: %w", err)
		}
		code := strings.TrimSpace(line)
		if code == "" {
			return "", fmt.Errorf("no authorization code entered")
		}
		return code, nil
	}
}
