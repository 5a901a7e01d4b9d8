// Package httpapi exposes a node's clock and causal history over HTTP.
//
// The JSON routes mirror the gateway facade; POST /v1/gateway accepts the
// same binary request the UDP transport carries, for clients that cannot
// speak datagrams.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/roach88/chronod/internal/gateway"
	"github.com/roach88/chronod/internal/transport"
	"github.com/roach88/chronod/internal/trigger"
	"github.com/roach88/chronod/internal/vlc"
)

// Server routes HTTP requests to a facade and a pipeline.
type Server struct {
	facade   *gateway.Facade
	pipeline *trigger.Pipeline
	logger   *slog.Logger
}

// New creates a server.
func New(f *gateway.Facade, p *trigger.Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{facade: f, pipeline: p, logger: logger}
}

// Handler returns a router with every route and the request log installed.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withLog)
	s.Route(r)
	return r
}

// Route registers the API on r.
func (s *Server) Route(r *mux.Router) {
	r.HandleFunc("/v1/gateway", s.gateway).Methods(http.MethodPost)
	r.HandleFunc("/v1/events", s.wrap(s.emit)).Methods(http.MethodPost)
	r.HandleFunc("/v1/clock", s.wrap(s.clock)).Methods(http.MethodGet)
	r.HandleFunc("/v1/status", s.wrap(s.status)).Methods(http.MethodGet)
	r.HandleFunc("/v1/clock-infos", s.wrap(s.clockInfos)).Methods(http.MethodGet)
	r.HandleFunc("/v1/clock-infos/{message_id}", s.wrap(s.clockInfo)).Methods(http.MethodGet)
	r.HandleFunc("/v1/merge-logs", s.wrap(s.mergeLogs)).Methods(http.MethodGet)
	r.HandleFunc("/v1/messages", s.wrap(s.messages)).Methods(http.MethodGet)
	r.HandleFunc("/v1/messages/{message_id}", s.wrap(s.message)).Methods(http.MethodGet)
}

// withLog logs the method and path of every request.
func (s *Server) withLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) wrap(next func(*http.Request, *Response)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := &Response{Status: http.StatusOK}
		next(r, resp)
		resp.Serve(w, r, s.logger)
	}
}

func (s *Server) gateway(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, transport.MaxDatagram))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(s.facade.HandleBytes(r.Context(), body))
}

func (s *Server) emit(r *http.Request, resp *Response) {
	var msg vlc.ApplicationMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, transport.MaxDatagram)).Decode(&msg); err != nil {
		resp.Fail(fmt.Errorf("%w: decode message: %v", gateway.ErrInvalid, err))
		return
	}

	ev, err := s.pipeline.Emit(r.Context(), msg)
	if err != nil {
		resp.Fail(err)
		return
	}
	resp.Status = http.StatusCreated
	resp.ClockInfo = &ev.Info
	resp.Message = &ev.Message
}

func (s *Server) clock(_ *http.Request, resp *Response) {
	info := s.pipeline.Engine().Current()
	resp.ClockInfo = &info
}

func (s *Server) status(r *http.Request, resp *Response) {
	totals, err := s.facade.Status(r.Context())
	if err != nil {
		resp.Fail(err)
		return
	}
	stats := s.pipeline.Stats()
	pending := s.pipeline.Pending()
	halted := s.pipeline.Engine().Halted()
	resp.Totals = &totals
	resp.Stats = &stats
	resp.Pending = &pending
	resp.Halted = &halted
}

func (s *Server) clockInfo(r *http.Request, resp *Response) {
	rec, err := s.facade.ClockInfo(r.Context(), mux.Vars(r)["message_id"])
	if err != nil {
		resp.Fail(err)
		return
	}
	resp.ClockInfo = &rec.ClockInfo
}

func (s *Server) message(r *http.Request, resp *Response) {
	rec, err := s.facade.Message(r.Context(), mux.Vars(r)["message_id"])
	if err != nil {
		resp.Fail(err)
		return
	}
	resp.Message = &rec.ApplicationMessage
}

func (s *Server) clockInfos(r *http.Request, resp *Response) {
	after, limit, err := parseCursor(r)
	if err != nil {
		resp.Fail(err)
		return
	}
	recs, err := s.facade.ClockInfos(r.Context(), after, limit)
	if err != nil {
		resp.Fail(err)
		return
	}
	next := after
	resp.ClockInfos = make([]ClockInfoItem, len(recs))
	for i, rec := range recs {
		resp.ClockInfos[i] = ClockInfoItem{Seq: rec.Seq, ClockInfo: rec.ClockInfo}
		next = rec.Seq
	}
	resp.Next = &next
}

func (s *Server) mergeLogs(r *http.Request, resp *Response) {
	after, limit, err := parseCursor(r)
	if err != nil {
		resp.Fail(err)
		return
	}
	recs, err := s.facade.MergeLogs(r.Context(), after, limit)
	if err != nil {
		resp.Fail(err)
		return
	}
	next := after
	resp.MergeLogs = make([]MergeLogItem, len(recs))
	for i, rec := range recs {
		resp.MergeLogs[i] = MergeLogItem{Seq: rec.Seq, MergeLog: rec.MergeLog}
		next = rec.Seq
	}
	resp.Next = &next
}

func (s *Server) messages(r *http.Request, resp *Response) {
	after, limit, err := parseCursor(r)
	if err != nil {
		resp.Fail(err)
		return
	}
	recs, err := s.facade.Messages(r.Context(), after, limit)
	if err != nil {
		resp.Fail(err)
		return
	}
	next := after
	resp.Messages = make([]MessageItem, len(recs))
	for i, rec := range recs {
		resp.Messages[i] = MessageItem{Seq: rec.Seq, ApplicationMessage: rec.ApplicationMessage}
		next = rec.Seq
	}
	resp.Next = &next
}

// parseCursor reads the optional after and limit query parameters.
func parseCursor(r *http.Request) (int64, uint32, error) {
	q := r.URL.Query()
	var after int64
	var limit uint32
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("%w: after must be a non-negative integer", gateway.ErrInvalid)
		}
		after = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: limit must be a non-negative integer", gateway.ErrInvalid)
		}
		limit = uint32(n)
	}
	return after, limit, nil
}
