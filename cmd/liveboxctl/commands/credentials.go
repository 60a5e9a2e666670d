package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Opens the site's login page and saves the session once you sign in.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			fmt.Fprintln(cmd.ErrOrStderr(), "Sign in in the browser window; waiting...")
			n, err := core.Orchestrator.Login(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d cookies to %s\n", n, core.Orchestrator.CredentialsPath())
			return nil
		},
	}
}

func newCredentialsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manages the saved site session cookies.",
	}

	save := &cobra.Command{
		Use:   "save [cookie-header]",
		Short: "Saves a raw \"name=value; ...\" cookie header, read from stdin when omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header := ""
			if len(args) == 1 {
				header = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				header = strings.TrimSpace(string(data))
			}

			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			n, err := core.Orchestrator.SaveCredentials(header)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d cookies to %s\n", n, core.Orchestrator.CredentialsPath())
			return nil
		},
	}

	load := &cobra.Command{
		Use:   "load",
		Short: "Prints the saved cookie header.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			header, err := core.Orchestrator.LoadCredentials()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), header)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Deletes the saved cookies.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			removed, err := core.Orchestrator.ClearCredentials()
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to clear")
			}
			return nil
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Prints where the cookies are saved.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			fmt.Fprintln(cmd.OutOrStdout(), core.Orchestrator.CredentialsPath())
			return nil
		},
	}

	cmd.AddCommand(save, load, clearCmd, path)
	return cmd
}
