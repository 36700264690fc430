package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/VibeCoder/backend/internal/api/http"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/middleware"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/api/ws"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/archive"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/catalog"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/project"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/templates"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/workspace"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/blob"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/headless"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/renderer"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/runner"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/vendor"
)

// Options overrides what NewServer would otherwise build from config
type Options struct {
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
	Gatherer prometheus.Gatherer
	// Store replaces the configured workspace store
	Store workspace.Store
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	blobs    *blob.Store
	tokens   *relay.Tokens
	limiter  *middleware.Limiter
	headless *headless.Pool
	tracer   *tracing.Tracer
	projects *project.Repository
	vendor   *vendor.Mirror
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}

	logger.Info("Initializing VibeCoder server",
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("vendor_mode", cfg.Vendor.Mode),
		zap.Strings("allowed_origins", cfg.Sandbox.AllowedOrigins),
	)

	// Initialize metrics first (needed by other components)
	metrics := opts.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	store := opts.Store
	if store == nil {
		var err error
		if store, err = openStore(ctx, cfg.Storage, logger); err != nil {
			return nil, err
		}
	}

	// Console changes fan out to websocket subscribers
	hub := ws.NewHub(metrics)
	workspaces := workspace.NewManager(workspace.Options{
		Store:        store,
		Listener:     hub,
		ConsoleLimit: cfg.Sandbox.ConsoleLimit,
		Logger:       logger,
		Metrics:      metrics,
	})

	mirror, err := vendor.New(vendor.Config{
		Mode:     cfg.Vendor.Mode,
		React:    cfg.Vendor.React,
		ReactDOM: cfg.Vendor.ReactDOM,
		Babel:    cfg.Vendor.Babel,
		BaseURL:  cfg.Server.PublicURL,
		Client: vendor.ClientConfig{
			Timeout: cfg.Vendor.Timeout,
			Retries: cfg.Vendor.Retries,
		},
	}, logger, metrics)
	if err != nil {
		return nil, err
	}

	blobs := blob.NewStore(blob.Options{
		TTL:      cfg.Sandbox.BlobTTL,
		MaxBytes: cfg.Sandbox.MaxBlobBytes,
		Logger:   logger,
		Metrics:  metrics,
	})
	tokens := relay.NewTokens(cfg.Sandbox.RelayTokenTTL)
	origins := relay.NewOrigins(cfg.Sandbox.AllowedOrigins)

	headlessCfg := headless.DefaultConfig()
	headlessCfg.Timeout = cfg.Sandbox.HeadlessTimeout
	headlessCfg.Size = cfg.Sandbox.HeadlessPool
	pool := headless.NewPool(headlessCfg, logger, metrics)
	tracer := tracing.New("vibecoder", logger)

	run := runner.New(runner.Options{
		Workspaces: workspaces,
		Renderer:   renderer.New(blobs, tokens, mirror, cfg.Server.PublicURL, logger),
		Headless:   pool,
		Tracer:     tracer,
		Logger:     logger,
		Metrics:    metrics,
	})
	rel := relay.New(tokens, origins, run, logger, metrics)

	library := templates.NewLibrary()
	if cfg.Templates.Dir != "" {
		loadTemplates(ctx, library, cfg.Templates, logger)
	}
	components, err := catalog.Builtin()
	if err != nil {
		return nil, fmt.Errorf("load component catalog: %w", err)
	}

	// Projects are optional: the editor works without a database
	var projects *project.Repository
	if cfg.Database.DSN != "" {
		projects, err = project.Open(ctx, cfg.Database.DSN, logger, metrics)
		if err != nil {
			logger.Warn("Project database unavailable, projects disabled", zap.Error(err))
			projects = nil
		} else {
			logger.Info("Project database connected", zap.String("dialect", string(projects.Dialect())))
		}
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(origins.List())))

	var limiter *middleware.Limiter
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limiter = middleware.NewLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		})
		router.Use(limiter.Middleware())
	}

	handlers := api.NewHandlers(api.Deps{
		Workspaces: workspaces,
		Runner:     run,
		Projects:   projects,
		Templates:  library,
		Catalog:    components,
		Blobs:      blobs,
		Relay:      rel,
		Vendor:     mirror,
		Archive:    archive.DefaultLimits(),
		Logger:     logger,
		Metrics:    metrics,
	})
	wsHandler := ws.NewHandler(workspaces, hub, origins, logger, metrics)
	auth := middleware.Auth(middleware.AuthConfig{
		Enabled:  cfg.Auth.Enabled,
		Secret:   []byte(cfg.Auth.JWTSecret),
		DevOwner: cfg.Auth.DevOwner,
	})

	registerRoutes(router, handlers, wsHandler, auth, cfg)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully",
		zap.Int("templates", len(library.List())),
		zap.Int("components", len(components.List(""))),
		zap.Bool("projects", projects != nil),
	)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		blobs:    blobs,
		tokens:   tokens,
		limiter:  limiter,
		headless: pool,
		tracer:   tracer,
		projects: projects,
		vendor:   mirror,
	}, nil
}

func registerRoutes(router *gin.Engine, h *api.Handlers, wsHandler *ws.Handler, auth gin.HandlerFunc, cfg *config.Config) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)

	// Preview document traffic; the relay is guarded by per-run tokens
	sandbox := router.Group("/sandbox")
	sandbox.GET("/blobs/:blob", h.ServeBlob)
	sandbox.POST("/relay/:run", middleware.GlobalRateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Sandbox.RelayRPS,
		Burst:             cfg.Sandbox.RelayRPS * 2,
	}), h.Relay)
	sandbox.GET("/vendor/:name", h.ServeVendor)

	// WebSocket
	router.GET("/ws/workspaces/:id/console", auth, wsHandler.HandleConnection)

	v := router.Group("/api", auth)

	// Workspaces
	v.GET("/workspaces", h.ListWorkspaces)
	v.POST("/workspaces", h.CreateWorkspace)
	v.POST("/workspaces/import", h.ImportWorkspace)
	v.GET("/workspaces/:id", h.GetWorkspace)
	v.PATCH("/workspaces/:id", h.RenameWorkspace)
	v.DELETE("/workspaces/:id", h.DeleteWorkspace)
	v.PUT("/workspaces/:id/autorun", h.SetAutoRun)
	v.PUT("/workspaces/:id/active", h.SetActive)
	v.PUT("/workspaces/:id/expanded", h.SetExpanded)
	v.DELETE("/workspaces/:id/console", h.ClearConsole)
	v.POST("/workspaces/:id/run", h.RunWorkspace)
	v.POST("/workspaces/:id/check", h.CheckWorkspace)
	v.GET("/workspaces/:id/export", h.ExportWorkspace)
	v.PUT("/workspaces/:id/tree", h.ReplaceTree)
	v.POST("/workspaces/:id/components/:component", h.InsertComponent)
	v.POST("/workspaces/:id/save", h.SaveWorkspace)
	v.POST("/workspaces/:id/sync", h.SyncWorkspace)

	// File tree; node IDs are slash-separated paths
	v.POST("/workspaces/:id/nodes", h.AddNode)
	v.DELETE("/workspaces/:id/nodes/*node", h.DeleteNode)
	v.PUT("/workspaces/:id/content/*node", h.UpdateContent)
	v.POST("/workspaces/:id/rename/*node", h.RenameNode)
	v.POST("/workspaces/:id/move/*node", h.MoveNode)

	// Projects
	v.GET("/projects", h.ListProjects)
	v.POST("/projects", h.CreateProject)
	v.GET("/projects/:project", h.GetProject)
	v.PATCH("/projects/:project", h.UpdateProject)
	v.DELETE("/projects/:project", h.DeleteProject)
	v.POST("/projects/:project/open", h.OpenProject)
	v.POST("/projects/:project/collaborators", h.AddCollaborator)
	v.DELETE("/projects/:project/collaborators/:user", h.RemoveCollaborator)

	// Libraries
	v.GET("/templates", h.ListTemplates)
	v.GET("/templates/:template", h.GetTemplate)
	v.GET("/components", h.ListComponents)
	v.GET("/components/:component", h.GetComponent)

	// Editor logs
	v.POST("/logs", h.StreamLogs)
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) (workspace.Store, error) {
	switch cfg.Backend {
	case "s3":
		store, err := workspace.NewS3Store(ctx, workspace.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open s3 store: %w", err)
		}
		logger.Info("Workspace store ready", zap.String("backend", "s3"), zap.String("bucket", cfg.S3Bucket))
		return store, nil
	default:
		store, err := workspace.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		abs, _ := filepath.Abs(cfg.Dir)
		logger.Info("Workspace store ready", zap.String("backend", "file"), zap.String("dir", abs))
		return store, nil
	}
}

func loadTemplates(ctx context.Context, library *templates.Library, cfg config.TemplatesConfig, logger *logging.Logger) {
	loader, err := templates.NewLoader(cfg.Ignore, logger)
	if err != nil {
		logger.Warn("Invalid template ignore patterns", zap.Error(err))
		return
	}
	list, err := loader.LoadDir(ctx, cfg.Dir)
	if err != nil {
		logger.Warn("Failed to load templates", zap.String("dir", cfg.Dir), zap.Error(err))
		return
	}
	library.Add(list...)
	logger.Info("Templates loaded", zap.String("dir", cfg.Dir), zap.Int("count", len(list)))
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP and the background sweepers until ctx is cancelled, then
// shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.blobs.Run(ctx, s.config.Sandbox.SweepInterval)
	go s.sweep(ctx, s.config.Sandbox.SweepInterval)
	if s.vendor.Mode() == vendor.ModeMirror {
		go func() {
			if err := s.vendor.Prefetch(ctx); err != nil {
				s.logger.Warn("Vendor prefetch incomplete", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer stop()
	return s.http.Shutdown(shutdownCtx)
}

// sweep drops expired relay tokens and idle rate limit buckets
func (s *Server) sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tokens := s.tokens.Sweep(now)
			clients := 0
			if s.limiter != nil {
				clients = s.limiter.Sweep()
			}
			if tokens > 0 || clients > 0 {
				s.logger.Debug("Swept idle state", zap.Int("tokens", tokens), zap.Int("clients", clients))
			}
		}
	}
}

// Close releases the headless pool and the database
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.headless.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close headless pool: %w", err))
	}
	if s.projects != nil {
		if err := s.projects.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close project database: %w", err))
		} else {
			s.logger.Info("Closed project database")
		}
	}

	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
