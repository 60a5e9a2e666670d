package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/use-agent/livebox/monitor"
)

func newMonitorCmd(opts *options) *cobra.Command {
	var auto bool
	cmd := &cobra.Command{
		Use:   "monitor <url> [--auto]",
		Short: "Scrapes a live room, then prints its chat, gift, like, arrival and follow messages as JSON lines.",
		Long: "Scrapes a live room, then prints its chat, gift, like, arrival and follow messages as JSON lines.\n" +
			"Messages are also pushed to the configured webhook ($LIVEBOX_WEBHOOK_URL) as live.<type> events.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			o := core.Orchestrator
			scrape := o.Scrape
			if auto {
				scrape = o.ScrapeAuto
			}
			out, err := scrape(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			target, err := monitor.TargetFromRoom(out.Result.Room())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "monitoring room %s; interrupt to stop\n", target.RoomID)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			forward := monitor.Forward(core.Webhook, uuid.NewString())
			err = core.Monitor.Run(cmd.Context(), target, func(msg monitor.Message) {
				_ = enc.Encode(msg)
				forward(msg)
			})

			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = core.Webhook.Wait(drainCtx)
			return err
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "Fall back to the rendered page on a captcha wall.")
	return cmd
}
