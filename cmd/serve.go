package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/emrgen/docvault/internal/config"
	"github.com/emrgen/docvault/internal/server"
)

func serveCmd() *cobra.Command {
	var httpPort string
	var grpcPort string
	var insecure bool

	command := &cobra.Command{
		Use:   "serve",
		Short: "start the http api and the grpc health server",
		Run: func(cmd *cobra.Command, args []string) {
			if insecure {
				os.Setenv("DOCVAULT_AUTH_INSECURE", "true")
			}
			cfg := config.LoadConfig()
			if cmd.Flag("http-port").Changed {
				cfg.Server.HTTPPort = httpPort
			}
			if cmd.Flag("grpc-port").Changed {
				cfg.Server.GRPCPort = grpcPort
			}

			server.NewServer(cfg).Start()
		},
	}

	command.Flags().StringVar(&httpPort, "http-port", "4021", "http port")
	command.Flags().StringVar(&grpcPort, "grpc-port", "4020", "grpc health port")
	command.Flags().BoolVar(&insecure, "insecure", false, "identify callers by the X-User-ID header")

	return command
}
