package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datasage-cli/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions over HTTP using the analysis backend API",
	Long: `Serve the local sessions over the same JSON API the analysis backend exposes,
so another datasage instance can point backend_url at this one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := settings()
		addr := c.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		root, err := sessionsDir()
		if err != nil {
			return err
		}
		opt, err := (&readFlags{}).options()
		if err != nil {
			return err
		}
		h, err := openHistory()
		if err != nil {
			return err
		}
		defer h.Close()

		ctx, stop := signal.NotifyContext(ctxOf(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		srv := httpapi.New(httpapi.Config{
			Addr:        addr,
			SessionsDir: root,
			Ingest:      opt,
			History:     h,
			Logger:      appLogger(),
		})
		return srv.Run(ctx, func(bound string) {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Listening on http://%s (Ctrl+C to stop)\n", bound)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config listen_addr)")
}

