package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/mailtrust/internal/channel"
	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

// Server is the HTTP + WebSocket surface of the aggregating side.
type Server struct {
	cfg      Config
	eval     channel.Evaluator
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer wires eval behind the scan endpoints.
func NewServer(cfg Config, eval channel.Evaluator, logger logging.Logger) (*Server, error) {
	if eval == nil {
		return nil, errors.New("server: evaluator is required")
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:    cfg,
		eval:   eval,
		router: r,
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			// the inspection side runs wherever the reader does
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options(channel.ScanPath, s.optionsHandler("POST"))
	r.Options(channel.WSScanPath, s.optionsHandler("GET"))

	r.Get("/healthz", s.handleHealth)
	r.Post(channel.ScanPath, s.handleScan)
	r.Get(channel.WSScanPath, s.handleScanWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if r.ContentLength > 0 {
		fields = append(fields, logging.Field{Key: "content_length", Value: r.ContentLength})
	}
	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req model.ScanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.logger.Warn("decoding scan request", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	v, status, err := s.evaluate(r.Context(), req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxBodyBytes)

	ctx := r.Context()
	for {
		var req model.ScanRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", logging.Field{Key: "error", Value: err.Error()})
			}
			return
		}

		var env channel.Envelope
		if v, _, err := s.evaluate(ctx, req); err != nil {
			env.Error = err.Error()
		} else {
			env.Verdict = v
		}
		if err := conn.WriteJSON(env); err != nil {
			s.logger.Warn("writing websocket verdict", logging.Field{Key: "error", Value: err.Error()})
			return
		}
	}
}

// evaluate normalizes and validates req, then runs it. The status is the HTTP
// code to report on error.
func (s *Server) evaluate(ctx context.Context, req model.ScanRequest) (*model.Verdict, int, error) {
	req = req.Normalized()
	if req.Domain == "" {
		return nil, http.StatusBadRequest, errors.New("domain is required")
	}
	if s.cfg.EvaluateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.EvaluateTimeout)
		defer cancel()
	}

	v, err := s.eval.Evaluate(ctx, req)
	if err != nil {
		s.logger.Warn("evaluating scan", logging.Field{Key: "run_id", Value: req.RunID}, logging.Field{Key: "error", Value: err.Error()})
		return nil, http.StatusInternalServerError, err
	}
	s.logger.Info("evaluated scan",
		logging.Field{Key: "run_id", Value: req.RunID},
		logging.Field{Key: "domain", Value: req.Domain},
		logging.Field{Key: "overall", Value: v.Overall})
	return v, http.StatusOK, nil
}
