package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/livebox/app"
	"github.com/use-agent/livebox/config"
)

// options are the persistent flags shared by every command.
type options struct {
	cookieFile  string
	logLevel    string
	interactive bool
}

// NewRootCmd builds the liveboxctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "liveboxctl",
		Short:         "liveboxctl scrapes live rooms and manages the saved site session.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.cookieFile, "cookie-file", "", "Cookie file (default: $LIVEBOX_COOKIE_FILE or ~/.livebox/cookies.json).")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error.")
	root.PersistentFlags().BoolVar(&opts.interactive, "interactive", true, "Allow opening a browser window to recover a session.")

	root.AddCommand(
		newScrapeCmd(opts),
		newMonitorCmd(opts),
		newLoginCmd(opts),
		newCredentialsCmd(opts),
	)
	return root
}

// ExecuteContext runs the CLI and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openCore loads the configuration with flag overrides and builds the core.
// Logs go to the command's error stream so stdout stays machine-readable.
func openCore(cmd *cobra.Command, opts *options) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.cookieFile != "" {
		cfg.Store.Path = opts.cookieFile
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if cmd.Flags().Changed("interactive") {
		cfg.Auth.Interactive = opts.interactive
	}

	logger, _ := app.NewLogger(config.LogConfig{Level: cfg.Log.Level, Format: "text"}, cmd.ErrOrStderr())
	return app.New(cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
