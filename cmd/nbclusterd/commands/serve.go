package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nbcluster/nbcluster/internal/config"
	"github.com/nbcluster/nbcluster/internal/logger"
	"github.com/nbcluster/nbcluster/pkg/cluster/local"
	"github.com/nbcluster/nbcluster/pkg/filestate"
	"github.com/nbcluster/nbcluster/pkg/netbios"
	"github.com/nbcluster/nbcluster/pkg/netbios/node"
)

var metricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the name service node and the clustered file-state cache",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9137", "address to serve Prometheus metrics on")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()

	nodeID := cfg.NetBIOS.ServerName
	store := local.NewStore[filestate.ClusterFileState](cfg.Cluster.MapName)
	topic := local.NewTopic()

	facade := filestate.NewFacade(nodeID, cfg.Cluster.MapName, store, topic)
	fsMetrics := filestate.NewMetrics()
	fsMetrics.Register(registry)
	facade.SetMetrics(fsMetrics)

	breaker := filestate.NewBreakCoordinator(nodeID, topic, cfg.OpLock.BreakTimeout, facade.PerNodeFor, nil, fsMetrics)
	breaker.ApplyDowngrade = facade.ApplyOplockBreak
	bus := filestate.NewBusHandler(nodeID, topic, facade, breaker)
	bus.Start()
	defer bus.Stop()

	n := node.NewNode(node.Config{
		BindAddress:         cfg.NetBIOS.BindAddress,
		Port:                cfg.NetBIOS.Port,
		PrimaryWINS:         cfg.NetBIOS.PrimaryWINS,
		SecondaryWINS:       cfg.NetBIOS.SecondaryWINS,
		BroadcastSubnetMask: cfg.NetBIOS.BroadcastSubnetMask,
		ServerName:          cfg.NetBIOS.ServerName,
		Aliases:             cfg.NetBIOS.Aliases,
		DomainName:          cfg.NetBIOS.DomainName,
		RefreshInterval:     cfg.NetBIOS.RefreshInterval,
		NameTTL:             cfg.NetBIOS.NameTTL,
	})
	n.RegisterMetrics(registry)
	if err := n.Start(); err != nil {
		return err
	}

	if err := n.AddName(cfg.NetBIOS.ServerName, netbios.TypeFileServer, false); err != nil {
		logger.Error("failed to register server name", "name", cfg.NetBIOS.ServerName, "error", err)
	}
	for _, alias := range cfg.NetBIOS.Aliases {
		if err := n.AddName(alias, netbios.TypeFileServer, false); err != nil {
			logger.Error("failed to register alias", "name", alias, "error", err)
		}
	}
	if cfg.NetBIOS.DomainName != "" {
		if err := n.AddName(cfg.NetBIOS.DomainName, netbios.TypeWorkstation, true); err != nil {
			logger.Error("failed to register domain name", "name", cfg.NetBIOS.DomainName, "error", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("nbclusterd started", "node_id", nodeID, "netbios_port", cfg.NetBIOS.Port, "metrics_addr", metricsAddr)

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	n.Stop(false, 5*time.Second)
	return nil
}
