// Command sim-server serves simulations over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/item-routing-simulator/internal/api"
	"github.com/signalsfoundry/item-routing-simulator/internal/config"
	"github.com/signalsfoundry/item-routing-simulator/internal/logging"
	"github.com/signalsfoundry/item-routing-simulator/internal/observability"
	"github.com/signalsfoundry/item-routing-simulator/internal/rpc"
	"github.com/signalsfoundry/item-routing-simulator/internal/scenario"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
	"github.com/signalsfoundry/item-routing-simulator/kb"
)

func main() {
	configPath := flag.String("config", "configs/sim-server.yaml", "path to a YAML config file (missing is fine)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewFromEnv().Error(context.Background(), "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Logging())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, prometheus.NewRegistry(), nil); err != nil {
		log.Error(ctx, "sim-server exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners lets tests inject pre-bound sockets. Nil fields are opened
// from cfg.
type listeners struct {
	http, grpc, metrics net.Listener
}

// run serves until ctx is cancelled or a server fails, then shuts
// everything down within cfg.Server.ShutdownTimeout.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, reg *prometheus.Registry, lis *listeners) error {
	if lis == nil {
		lis = &listeners{}
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		return err
	}
	simMetrics, err := observability.NewSimulationCollector(reg)
	if err != nil {
		return err
	}

	store := kb.NewKnowledgeBase(kb.WithRunLimit(cfg.Simulation.RunHistory))
	svc := service.New(store,
		service.WithLogger(log),
		service.WithMetrics(simMetrics),
		service.WithLimits(service.Limits{
			MaxRounds:     cfg.Simulation.MaxRounds,
			MaxAgents:     cfg.Simulation.MaxAgents,
			DefaultRounds: cfg.Simulation.DefaultRounds,
		}),
	)
	if _, err := svc.SaveScenario("example", scenario.Canonical()); err != nil {
		return err
	}
	unsubscribe := store.Subscribe(func(e kb.Event) {
		log.Debug(context.Background(), "knowledge base event",
			logging.String("type", e.Type.String()),
			logging.String("scenario", e.Scenario),
		)
	})
	defer unsubscribe()

	httpSrv := &http.Server{
		Addr: cfg.Server.HTTPAddr,
		Handler: api.NewRouter(svc,
			api.WithLogger(log),
			api.WithMetrics(apiMetrics),
			api.WithRateLimit(cfg.Simulation.RateLimit, cfg.Simulation.RateBurst),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv, health := rpc.NewGRPCServer(svc, log, apiMetrics)

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", apiMetrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l, err := listen(lis.http, cfg.Server.HTTPAddr)
		if err != nil {
			return err
		}
		log.Info(ctx, "serving HTTP API", logging.String("addr", l.Addr().String()))
		if err := httpSrv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		l, err := listen(lis.grpc, cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		log.Info(ctx, "serving gRPC API", logging.String("addr", l.Addr().String()))
		if err := grpcSrv.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	if metricsSrv != nil {
		g.Go(func() error {
			l, err := listen(lis.metrics, cfg.Server.MetricsAddr)
			if err != nil {
				return err
			}
			log.Info(ctx, "serving Prometheus metrics", logging.String("addr", l.Addr().String()))
			if err := metricsSrv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down sim-server")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcSrv.Stop()
		}

		err := httpSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			err = errors.Join(err, metricsSrv.Shutdown(shutdownCtx))
		}
		return err
	})

	return g.Wait()
}

func listen(l net.Listener, addr string) (net.Listener, error) {
	if l != nil {
		return l, nil
	}
	return net.Listen("tcp", addr)
}
