package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/pdfchat/pkg/scraper"
	"github.com/xhad/pdfchat/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat over a websocket",
	Long: `Starts an HTTP server with a websocket endpoint at /ws and a health check
at /health. Each websocket connection is its own conversation.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), config)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.NewWSServer(a.assistant, a.ingester, server.Config{
		Addr: addr,
		Scraper: scraper.ScraperConfig{
			MaxDepth:       config.Scraper.MaxDepth,
			RateLimit:      config.Scraper.RateLimit,
			IgnorePatterns: config.Scraper.IgnorePatterns,
		},
	})
	color.New(color.FgCyan).Fprintf(cmd.ErrOrStderr(), "Listening on %s (ws://%s/ws)\n", addr, addr)
	return srv.ListenAndServe(cmd.Context())
}
