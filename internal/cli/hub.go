package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denkmit/denkmit/gossip/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var HubCmd = &cobra.Command{
	Use:     "hub",
	Short:   "Run a standalone gossip hub",
	Long:    `Run a websocket hub at /gossip that relays head announcements between replicas started with --hub-url.`,
	PreRunE: bindFlags,
	RunE:    runHub,
}

func init() {
	key := "hub-listen"
	HubCmd.Flags().String(key, "127.0.0.1:8090", WrapString("Address the hub listens on"))
}

func runHub(cmd *cobra.Command, _ []string) error {
	log, err := newLogger(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/gossip", websocket.NewHub(log))
	srv := &http.Server{
		Addr:              viper.GetString("hub-listen"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("hub listening", zap.String("listen", srv.Addr))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}
