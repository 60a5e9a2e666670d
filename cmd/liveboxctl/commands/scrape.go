package commands

import (
	"github.com/spf13/cobra"

	"github.com/use-agent/livebox/models"
	"github.com/use-agent/livebox/orchestrator"
)

func newScrapeCmd(opts *options) *cobra.Command {
	var rendered, auto bool
	cmd := &cobra.Command{
		Use:   "scrape <url> [--rendered | --auto]",
		Short: "Scrapes a live room and prints its data as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			o := core.Orchestrator
			scrape := o.Scrape
			switch {
			case rendered:
				scrape = o.ScrapeRendered
			case auto:
				scrape = o.ScrapeAuto
			}

			out, err := scrape(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), roomOutput(out))
		},
	}
	cmd.Flags().BoolVar(&rendered, "rendered", false, "Read the room from a page rendered in the browser.")
	cmd.Flags().BoolVar(&auto, "auto", false, "Fall back to the rendered page on a captcha wall.")
	cmd.MarkFlagsMutuallyExclusive("rendered", "auto")
	return cmd
}

type scrapeOutput struct {
	Room            *models.Room `json:"room"`
	Source          string       `json:"source"`
	Attempts        int          `json:"attempts"`
	Reauthenticated bool         `json:"reauthenticated"`
	States          []string     `json:"states"`
}

func roomOutput(out *orchestrator.Outcome) scrapeOutput {
	states := make([]string, 0, len(out.States))
	for _, s := range out.States {
		states = append(states, s.String())
	}
	return scrapeOutput{
		Room:            out.Result.Room(),
		Source:          out.Source,
		Attempts:        out.Attempts,
		Reauthenticated: out.Reauthenticated,
		States:          states,
	}
}
