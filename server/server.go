package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/jupark12/docqueue/models"
	"github.com/jupark12/docqueue/observability"
	"github.com/jupark12/docqueue/queue"
	"github.com/jupark12/docqueue/worker"
)

// Config holds the dashboard server settings.
type Config struct {
	Addr              string
	Workers           int
	PollInterval      time.Duration
	MaxUploadBytes    int64
	ReleaseOnDownload bool
}

// Server handles HTTP requests for job management
type Server struct {
	queue        *queue.JobQueue
	orchestrator *worker.Orchestrator
	workers      []*worker.Worker
	cfg          Config
	wsManager    *models.WebSocketManager
	upgrader     websocket.Upgrader
	httpServer   *http.Server
	log          *observability.Logger

	stopWorkers context.CancelFunc
	pumpDone    chan struct{}
	stopOnce    sync.Once
}

// NewServer creates a new server instance
func NewServer(q *queue.JobQueue, orch *worker.Orchestrator, cfg Config, log *observability.Logger) *Server {
	if log == nil {
		log = observability.Nop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}

	wsManager := models.NewWebSocketManager(log.Zerolog())
	wsManager.Start()

	s := &Server{
		queue:        q,
		orchestrator: orch,
		cfg:          cfg,
		wsManager:    wsManager,
		log:          log,
		workers:      make([]*worker.Worker, cfg.Workers),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	// Milestones go through the queue's update channel to the websocket hub.
	orch.SetNotifier(q.NotifyJobUpdate)

	for i := 0; i < cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		s.workers[i] = worker.NewWorker(workerID, q, orch, cfg.PollInterval, log)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the dashboard router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"service": "docqueue",
			"clients": s.wsManager.ClientCount(),
		})
	})
	r.Get("/operations", s.handleOperations)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Post("/", s.handleCreateJob)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Delete("/", s.handleDiscardJob)
			r.Get("/artifact", s.handleDownload)
		})
	})

	r.Get("/ws", s.handleWebSocket)
	return r
}

// Start runs the workers, the update pump and the HTTP listener. It
// returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	s.startBackground()

	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWorkers = cancel
	s.pumpDone = make(chan struct{})
	go s.pumpUpdates(ctx)

	for _, w := range s.workers {
		w.Start(ctx)
	}
}

// Shutdown stops accepting requests, lets running jobs finish and closes
// websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.stopOnce.Do(func() {
		if s.stopWorkers != nil {
			s.stopWorkers()
			for _, w := range s.workers {
				select {
				case <-w.Done():
				case <-ctx.Done():
					s.log.Warn().Str("worker_id", w.ID).Msg("Worker still busy at shutdown")
				}
			}
			<-s.pumpDone
		}
		s.wsManager.Stop()
	})
	return err
}

// pumpUpdates forwards queue updates to websocket clients.
func (s *Server) pumpUpdates(ctx context.Context) {
	defer close(s.pumpDone)
	updates := s.queue.GetJobUpdateChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			s.wsManager.BroadcastJobUpdate(snap)
		}
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader)
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, "+SessionHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
