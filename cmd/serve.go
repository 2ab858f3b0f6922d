package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/chartloom-cli/internal/config"
	"github.com/KaramelBytes/chartloom-cli/internal/server"
	"github.com/KaramelBytes/chartloom-cli/internal/store"
)

var (
	srvHost string
	srvPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for uploads, classification and charts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		if c == nil {
			loaded, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			c = loaded
		}
		f := cmd.Flags()
		if f.Changed("host") {
			c.Host = srvHost
		}
		if f.Changed("port") {
			c.Port = srvPort
		}
		if err := c.Validate(); err != nil {
			return err
		}

		st := store.New(store.Options{
			Capacity: c.StoreCapacity,
			TTL:      c.StoreTTL(),
			Logger:   logger,
		})
		sweep := time.Duration(0)
		if c.StoreTTLMin > 0 {
			sweep = time.Minute
		}
		srv := server.New(server.Config{
			Addr:           c.Addr(),
			Store:          st,
			Options:        c.AnalysisOptions(),
			MaxUploadBytes: c.MaxUploadBytes(),
			PreviewRows:    c.PreviewRows,
			SweepEvery:     sweep,
			Logger:         logger,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvHost, "host", "", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&srvPort, "port", 0, "listen port (overrides config)")
}
