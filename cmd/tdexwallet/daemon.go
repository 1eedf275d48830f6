package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tdex-network/tdex-wallet/internal/config"
	"github.com/tdex-network/tdex-wallet/internal/core/application"
	"github.com/tdex-network/tdex-wallet/pkg/stats"
)

var daemon = cli.Command{
	Name:  "daemon",
	Usage: "keep the wallets of the datadir in sync and serve their metrics",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "wallets",
			Usage: "names of the wallets to sync, all wallets if empty",
		},
	},
	Action: daemonAction,
}

func daemonAction(ctx *cli.Context) error {
	manager, err := getWalletManager()
	if err != nil {
		return err
	}
	defer manager.CloseAll()

	names := ctx.StringSlice("wallets")
	if len(names) <= 0 {
		if names, err = manager.List(); err != nil {
			return err
		}
	}
	if len(names) <= 0 {
		return errors.New("no wallets to sync, create or restore one first")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := stats.NewWalletMetrics(registry)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	for _, name := range names {
		name := name
		w, err := manager.Open(name)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return w.Run(gctx)
		})
		g.Go(func() error {
			watchWallet(gctx, name, w, metrics)
			return nil
		})
		log.WithField("wallet", name).Info("syncing wallet")
	}

	if addr := config.GetString(config.StatsAddressKey); addr != "" {
		dumpPath := filepath.Join(config.GetDatadir(), config.StatsLocation, "metrics")
		stats.EnableMemoryStatistics(
			gctx, config.GetDuration(config.StatsIntervalKey), registry, dumpPath,
		)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Infof("serving metrics on %s", addr)
			if err := server.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info("exiting")
	return err
}

// watchWallet updates the metrics of the wallet at every event until the
// context is done.
func watchWallet(
	ctx context.Context, name string, w *application.WalletState,
	metrics *stats.WalletMetrics,
) {
	updateState := func() {
		info := w.SyncStatus()
		metrics.SetHeights(name, info.Cursor.Height, info.TipHeight)
		b := w.Balance()
		metrics.SetBalance(name, b.Spendable, b.Pending, b.Reserved)
	}
	updateState()

	for {
		events, unsubscribe := w.Subscribe()
		for open := true; open; {
			select {
			case <-ctx.Done():
				unsubscribe()
				return
			case event, ok := <-events:
				if !ok {
					// Dropped for being too slow, subscribe again.
					open = false
					continue
				}
				handleEvent(name, event, metrics)
				updateState()
			}
		}
		unsubscribe()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func handleEvent(name string, event application.Event, metrics *stats.WalletMetrics) {
	switch event.Type {
	case application.EventReorg:
		metrics.IncReorgs(name)
	case application.EventTxBroadcasted:
		metrics.IncSends(name, stats.SendBroadcasted)
	case application.EventTxBroadcastPending:
		metrics.IncSends(name, stats.SendPending)
	case application.EventTxFailed:
		metrics.IncSends(name, stats.SendFailed)
	case application.EventSyncStalled, application.EventSyncCorrupt:
		metrics.IncSyncErrors(name, event.Type.String())
	}
}
