package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"sleepywoodpecker/ppg-scope/internal/pipeline"
)

// Server exposes the chart window and session control over HTTP.
type Server struct {
	manager     *pipeline.Manager
	logger      *zap.Logger
	minYSpan    float64
	stopTimeout time.Duration
}

const DefaultStopTimeout = 5 * time.Second

func NewServer(manager *pipeline.Manager, minYSpan float64, stopTimeout time.Duration, logger *zap.Logger) *Server {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{
		manager:     manager,
		logger:      logger,
		minYSpan:    minYSpan,
		stopTimeout: stopTimeout,
	}
}

func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods("GET")

	r.HandleFunc("/window", s.GetWindowHandler).Methods("GET")
	r.HandleFunc("/window.png", s.GetWindowPNGHandler).Methods("GET")

	r.HandleFunc("/session", s.GetSessionHandler).Methods("GET")
	r.HandleFunc("/session/plot", s.StartPlottingHandler).Methods("POST")
	r.HandleFunc("/session/record", s.StartRecordingHandler).Methods("POST")
	r.HandleFunc("/session/stop", s.StopHandler).Methods("POST")
	r.HandleFunc("/session/channel/{channel}", s.SetChannelHandler).Methods("PUT")

	r.Use(s.logRequests)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("[api] request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("took", time.Since(start)))
	})
}
