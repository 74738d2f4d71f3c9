package cmd

import (
	"context"
	"log"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/api"
	"github.com/spigell/jobmatch/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the matching api over http",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("address", "a", "", "listen address, overrides server.address")

	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
}

func serve() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	comps, err := buildComponents(ctx, config, logger)
	if err != nil {
		logger.Fatal("building components", zap.Error(err))
	}

	h := server.Default(server.WithHostPorts(config.Server.Address))
	h.OnShutdown = append(h.OnShutdown, func(context.Context) {
		if err := comps.Close(); err != nil {
			logger.Warn("closing components", zap.Error(err))
		}
	})

	api.RegisterRoutes(h, api.NewHandler(comps.matcher, comps.filters, version, logger))

	logger.Info("starting the jobmatch api",
		zap.String("version", version),
		zap.String("address", config.Server.Address),
	)

	h.Spin()
}
