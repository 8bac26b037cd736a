package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denkmit/denkmit"
	"github.com/denkmit/denkmit/gossip/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ServeCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve a dataset over HTTP and replicate it",
	Long:    `Open (or create) a dataset and serve it over HTTP. Heads are announced over a websocket gossip hub, either one hosted by this process (--serve-hub) or a remote one (--hub-url). The configuration can be set via command line flags, a YAML config file or environment variables of the form DENKMIT_<flag> (e.g. DENKMIT_DATA_DIR=/var/lib/denkmit)`,
	PreRunE: bindFlags,
	RunE:    runServe,
}

func init() {
	addStoreFlags(ServeCmd)

	key := "address"
	ServeCmd.Flags().String(key, "", WrapString("Address of the dataset to open (/denkmitdb/<manifest>). A new dataset is created when empty"))
	key = "name"
	ServeCmd.Flags().String(key, "denkmit", WrapString("Name recorded in the manifest of a new dataset"))
	key = "order"
	ServeCmd.Flags().Int(key, denkmit.DefaultOrder, WrapString("Pollard order of a new dataset; every Pollard holds 2^order leaves"))
	key = "hash"
	ServeCmd.Flags().String(key, denkmit.DefaultHash, WrapString("Hash function of the dataset (blake2b-256, blake3-256, sha2-256)"))
	key = "key-file"
	ServeCmd.Flags().String(key, "", WrapString("PEM file holding the signing key. Generated when missing; an ephemeral key is used when empty"))
	key = "listen"
	ServeCmd.Flags().String(key, "127.0.0.1:8080", WrapString("Address the HTTP API listens on"))
	key = "hub-url"
	ServeCmd.Flags().String(key, "", WrapString("Websocket URL of a gossip hub to join (e.g. ws://10.0.0.1:8080/gossip)"))
	key = "serve-hub"
	ServeCmd.Flags().Bool(key, false, WrapString("Host a gossip hub at /gossip on the HTTP listener and join it"))
	key = "broadcast-interval"
	ServeCmd.Flags().Duration(key, denkmit.DefaultBroadcastInterval, WrapString("How often the current head is announced"))
}

// addStoreFlags adds the flags selecting the block backend.
func addStoreFlags(cmd *cobra.Command) {
	key := "store"
	cmd.Flags().String(key, storeFile, WrapString("Block backend (memory, file, bolt, leveldb, pebble, s3)"))
	key = "data-dir"
	cmd.Flags().String(key, "data", WrapString("Directory of the file, bolt, leveldb and pebble backends"))
	key = "s3-bucket"
	cmd.Flags().String(key, "", WrapString("Bucket of the s3 backend"))
	key = "s3-prefix"
	cmd.Flags().String(key, "", WrapString("Key prefix of the s3 backend"))
	key = "s3-endpoint"
	cmd.Flags().String(key, "", WrapString("Endpoint of an S3-compatible service; AWS is used when empty"))
	key = "s3-region"
	cmd.Flags().String(key, "", WrapString("Region of the s3 backend"))
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := configFromViper()
	if err := cfg.validate(); err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Debug("configuration\n" + cfg.String())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := startNode(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer srv.close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.http.ListenAndServe() }()
	log.Info("serving", zap.String("listen", cfg.Listen), zap.String("address", srv.db.Address()))
	fmt.Fprintln(cmd.OutOrStdout(), srv.db.Address())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.http.Shutdown(shutdown)
}

type node struct {
	db      *denkmit.DB[[]byte]
	http    *http.Server
	closers []func() error
	log     *zap.Logger
}

func (n *node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			n.log.Warn("close", zap.Error(err))
		}
	}
}

// startNode opens the backend, the gossip transport and the dataset.
func startNode(ctx context.Context, cfg Config, log *zap.Logger) (*node, error) {
	n := &node{log: log}
	persist, closePersist, err := openPersist(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	n.closers = append(n.closers, closePersist)

	key, err := loadOrCreateKey(cfg.KeyFile)
	if err != nil {
		n.close()
		return nil, fmt.Errorf("key %s: %w", cfg.KeyFile, err)
	}

	var (
		gossip denkmit.Gossip
		hub    *websocket.Hub
	)
	dbCfg := denkmit.Config{
		Persist:           persist,
		Key:               key,
		Logger:            log,
		BroadcastInterval: cfg.BroadcastInterval,
		Name:              cfg.Name,
		Order:             cfg.Order,
		Hash:              cfg.Hash,
	}
	switch {
	case cfg.ServeHub:
		hub = websocket.NewHub(log.Named("hub"))
		local := hub.Local()
		n.closers = append(n.closers, local.Close)
		gossip = local
	case cfg.HubURL != "":
		client, err := websocket.Dial(ctx, cfg.HubURL, log.Named("gossip"))
		if err != nil {
			n.close()
			return nil, err
		}
		n.closers = append(n.closers, client.Close)
		gossip = client
	}
	dbCfg.Gossip = gossip

	var db *denkmit.DB[[]byte]
	if cfg.Address != "" {
		db, err = denkmit.Open[[]byte](ctx, cfg.Address, dbCfg, denkmit.BytesCodec{})
	} else {
		db, err = denkmit.Create[[]byte](ctx, dbCfg, denkmit.BytesCodec{})
	}
	if err != nil {
		n.close()
		return nil, err
	}
	n.db = db
	n.closers = append(n.closers, db.Close)

	var gossipHandler http.Handler
	if hub != nil {
		gossipHandler = hub
	}
	n.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           newAPI(db, log.Named("api"), gossipHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return n, nil
}
