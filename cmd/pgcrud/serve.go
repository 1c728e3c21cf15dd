package pgcrud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/pgcrud/pkg/config"
	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/events"
	"github.com/edgeflare/pgcrud/pkg/httputil"
	mw "github.com/edgeflare/pgcrud/pkg/httputil/middleware"
	"github.com/edgeflare/pgcrud/pkg/metrics"
	pg "github.com/edgeflare/pgcrud/pkg/pgx"
	"github.com/edgeflare/pgcrud/pkg/pgx/schema"
	"github.com/edgeflare/pgcrud/pkg/rest"
	"github.com/edgeflare/pgcrud/pkg/store"
	"github.com/edgeflare/pgcrud/pkg/store/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"rest"},
	Short:   "Start the REST API server",
	Long:    `Starts a REST API server that provides access to the configured collections through HTTP endpoints`,
	RunE:    runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("rest.pg.connString", "c", "", "PostgreSQL connection string")
	f.StringP("rest.listenAddr", "l", "", "REST server listen address")
	f.String("rest.baseURL", "", "Base URL for API endpoints")
	f.String("rest.store", "", "Storage backend (postgres, memory)")
	f.Bool("rest.tls.enabled", false, "Serve HTTPS, with a self-signed certificate unless rest.tls.certFile is set")
	f.String("events.connector", "", "Change event connector (none, log, nats)")
	f.Bool("metrics.enabled", false, "Serve Prometheus metrics")
	f.String("metrics.addr", "", "Metrics server listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.File != "" {
		logger.Info("using config file", zap.String("path", cfg.File))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	publisher, err := events.Open(ctx, cfg.Events.Connector, cfg.Events.Config, logger)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	defer publisher.Close()

	handler := rest.NewHandler(registry, st,
		rest.WithLogger(logger.Named("rest")),
		rest.WithPublisher(publisher),
	)

	routerOpts := []httputil.RouterOptions{
		httputil.WithLogger(logger),
		httputil.WithServerOptions(func(s *http.Server) {
			s.ReadHeaderTimeout = 10 * time.Second
		}),
	}
	if cfg.REST.TLS.Enabled {
		routerOpts = append(routerOpts, httputil.WithTLS(cfg.REST.TLS.CertFile, cfg.REST.TLS.KeyFile))
	}
	router := httputil.NewRouter(routerOpts...)

	// the access log needs the request id, so it runs after RequestID
	router.Use(mw.RequestID)
	if logLevel != "none" {
		router.Use(mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger.Named("http")}))
	}
	if cfg.REST.CORS {
		router.Use(mw.CORSWithOptions(nil))
	}
	rest.NewServer(handler, cfg.REST.BaseURL).Register(router)

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	errCh := make(chan error, 1)
	go func() {
		if err := router.ListenAndServe(cfg.REST.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received termination signal")
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	wg.Wait()

	logger.Info("server gracefully stopped")
	return nil
}

// openStore builds the collection registry and the storage backend it
// runs on. With PostgreSQL the catalog is introspected once, up front.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*entity.Registry, store.Store, error) {
	if cfg.REST.Store == config.StoreMemory {
		registry, err := newRegistry(cfg.Collections)
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("using the in-memory store, data is lost on exit")
		return registry, memory.New(registry), nil
	}

	pool, err := pg.Connect(ctx, pg.Pool{
		ConnString: cfg.REST.PG.ConnString,
		Retry:      cfg.REST.PG.ConnectTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}

	var opts []entity.Option
	if cfg.REST.Introspect {
		catalog, err := schema.Load(ctx, pool, cfg.REST.PG.Schemas...)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("introspect database: %w", err)
		}
		logger.Info("loaded database catalog", zap.Int("tables", len(catalog.Tables())))
		opts = append(opts, entity.WithIntrospector(catalog))
	}

	registry, err := newRegistry(cfg.Collections, opts...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return registry, pg.NewStore(pool, registry), nil
}

// newRegistry resolves every collection once so definition errors surface
// at startup rather than on the first request.
func newRegistry(defs []entity.Definition, opts ...entity.Option) (*entity.Registry, error) {
	registry, err := entity.NewRegistry(defs, opts...)
	if err != nil {
		return nil, err
	}
	for _, name := range registry.Names() {
		if _, err := registry.Resolve(name); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
