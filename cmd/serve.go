package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"automd/pkg/logging"
	"automd/pkg/webui"
)

// serveCmd runs the web front-end: uploads and repository URLs in,
// progress events over websocket, rendered documents out.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web front-end",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := cmd.Flags().GetString("addr")
		if err != nil {
			return fmt.Errorf("error reading flags: %w", err)
		}
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return fmt.Errorf("error reading flags: %w", err)
		}

		logger, err := logging.New(verbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer logging.Sync(logger)

		server := webui.NewServer(logger)
		defer server.Close()

		logger.Info("Serving web front-end", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, server.Routes()); err != nil {
			logger.Error("Server stopped", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().BoolP("verbose", "v", false, "Verbose logging")
	RootCmd.AddCommand(serveCmd)
}
