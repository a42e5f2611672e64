// Package server is the composition root: it wires the config loader,
// cache, database, router, hot-reload watcher, and LSP server together
// into one runnable process and owns the HTTP listener's lifecycle.
//
// A `New` constructor wires every sub-component once, with a
// `Run`/`Shutdown` pair around a plain `net/http.Server`. The HTTP
// listener, the hot-reload watcher, and an optional LSP stdio loop all
// run under one golang.org/x/sync/errgroup.Group, so any one of them
// failing shuts the rest down.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyjsonserver/rustyjsonserver/internal/cache"
	"github.com/rustyjsonserver/rustyjsonserver/internal/config"
	"github.com/rustyjsonserver/rustyjsonserver/internal/jsonval"
	"github.com/rustyjsonserver/rustyjsonserver/internal/logging"
	"github.com/rustyjsonserver/rustyjsonserver/internal/lsp"
	"github.com/rustyjsonserver/rustyjsonserver/internal/reload"
	"github.com/rustyjsonserver/rustyjsonserver/internal/rjs"
	"github.com/rustyjsonserver/rustyjsonserver/internal/router"
	"github.com/rustyjsonserver/rustyjsonserver/internal/store"
)

const defaultCacheMaxBytes = 64 << 20

// Options configures New. Zero values take the documented defaults:
// DBDir "./data", CacheMaxBytes 64MiB, Logger from RJSERVER_LOG.
type Options struct {
	NoWatch       bool
	DBDir         string
	CacheMaxBytes int
	Logger        *logging.Logger
	EnableLSP     bool
	LSPIn         io.Reader
	LSPOut        io.Writer
}

// tableSource is whatever currently holds the live RouteTable: either a
// reload.Coordinator (watch mode) or a static snapshot (--no-watch).
type tableSource interface {
	RouteTable() *config.RouteTable
}

type staticTable struct{ table *config.RouteTable }

func (s staticTable) RouteTable() *config.RouteTable { return s.table }

// Server owns the HTTP listener, the route table source, and the shared
// host services (cache, DB, logger) every dynamic route's script runs
// against.
type Server struct {
	httpServer  *http.Server
	source      tableSource
	coordinator *reload.Coordinator
	lspServer   *lsp.Server
	host        rjs.Host
	logger      *logging.Logger
	db          *store.DB
}

// New builds a Server for the config rooted at cfgPath. In watch mode
// (the default) it starts a reload.Coordinator; with opts.NoWatch it
// loads the route table once and never re-reads the config.
func New(cfgPath string, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewFromEnv("rustyjsonserver")
	}

	dbDir := opts.DBDir
	if dbDir == "" {
		dbDir = "./data"
	}
	db, err := store.Open(dbDir)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	maxBytes := opts.CacheMaxBytes
	if maxBytes == 0 {
		maxBytes = defaultCacheMaxBytes
	}
	cacheStore := cache.New(maxBytes)

	host := rjs.Host{
		Cache:  cacheStore,
		DB:     db,
		Logger: logger,
		Sleep: func(ms float64) {
			time.Sleep(time.Duration(ms * float64(time.Millisecond)))
		},
	}

	var source tableSource
	var coordinator *reload.Coordinator
	if opts.NoWatch {
		table, _, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		source = staticTable{table: table}
	} else {
		coordinator, err = reload.New(cfgPath, logger)
		if err != nil {
			return nil, err
		}
		source = coordinator
	}

	port := source.RouteTable().Port
	srv := &Server{
		source:      source,
		coordinator: coordinator,
		host:        host,
		logger:      logger,
		db:          db,
	}
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if opts.EnableLSP {
		in := opts.LSPIn
		if in == nil {
			in = os.Stdin
		}
		out := opts.LSPOut
		if out == nil {
			out = os.Stdout
		}
		srv.lspServer = lsp.NewServer(in, out)
	}

	return srv, nil
}

// Addr returns the address the HTTP listener binds to.
func (s *Server) Addr() string { return s.httpServer.Addr }

// ServeHTTP translates an *http.Request into a router.RawRequest, dispatches
// it against the current RouteTable snapshot, and writes the result back as
// a JSON response. A fresh Dispatcher is built per request so concurrent
// requests never race a mid-flight RouteTable swap: each either sees the
// whole old table or the whole new one.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write(jsonval.Encode(errorBody("could not read request body")))
		return
	}

	raw := router.RawRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Query:       r.URL.Query(),
		Headers:     r.Header,
	}

	dispatcher := router.New(s.source.RouteTable(), s.host)
	result := dispatcher.Dispatch(raw)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	w.Write(jsonval.Encode(result.Body))
}

func errorBody(message string) jsonval.Value {
	o := jsonval.NewObject()
	o.Set("error", jsonval.String(message))
	return jsonval.Obj(o)
}

// Run starts the HTTP listener, the hot-reload watcher (if enabled), and
// the LSP stdio server (if enabled), all under one cancellable group —
// any one of them failing, or ctx being cancelled, shuts down the rest.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.coordinator != nil {
		g.Go(func() error {
			s.coordinator.Run()
			return nil
		})
	}

	g.Go(func() error {
		s.logger.Infof("listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if s.lspServer != nil {
		g.Go(func() error {
			return s.lspServer.Run()
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return s.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown gracefully stops the HTTP listener and the reload watcher,
// waiting up to 5 seconds for in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.coordinator != nil {
		s.coordinator.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
