package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"sleepywoodpecker/ppg-scope/internal/chart"
	"sleepywoodpecker/ppg-scope/internal/pipeline"
)

type WindowResponse struct {
	chart.View
	Frame chart.Frame `json:"frame"`
	State string      `json:"state"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// GetWindowHandler returns the visible points and bounds of the current session's chart.
func (s *Server) GetWindowHandler(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Current()
	if sess == nil {
		writeJSON(w, http.StatusOK, WindowResponse{
			View:  chart.View{Points: []chart.Point{}},
			State: chart.Empty.String(),
		})
		return
	}

	view := sess.Window()
	if view.Points == nil {
		view.Points = []chart.Point{}
	}
	writeJSON(w, http.StatusOK, WindowResponse{
		View:  view,
		Frame: view.Frame(s.minYSpan),
		State: view.State.String(),
	})
}

// GetWindowPNGHandler renders the current window. An empty window has nothing to draw.
func (s *Server) GetWindowPNGHandler(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Current()
	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	opts := chart.RenderOptions{
		Title:    "PPG " + sess.Channel().String(),
		MinYSpan: s.minYSpan,
	}
	for name, dst := range map[string]*int{"width": &opts.Width, "height": &opts.Height} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 4096 {
			http.Error(w, "invalid "+name, http.StatusBadRequest)
			return
		}
		*dst = v
	}

	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, sess.Window(), opts); err != nil {
		if errors.Is(err, chart.ErrEmptyWindow) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.logger.Warn("[api] error rendering window", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := s.manager.Current()
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("no session started"))
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) StartPlottingHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.StartPlotting(context.WithoutCancel(r.Context()))
	s.respondStart(w, sess, err)
}

func (s *Server) StartRecordingHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.StartRecording(context.WithoutCancel(r.Context()))
	s.respondStart(w, sess, err)
}

func (s *Server) respondStart(w http.ResponseWriter, sess *pipeline.Session, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sess.Status())
	case errors.Is(err, pipeline.ErrRecordingRefused):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, pipeline.ErrSessionClosed):
		writeError(w, http.StatusConflict, err)
	default:
		s.logger.Warn("[api] error starting session", zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
	}
}

func (s *Server) StopHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.stopTimeout)
	defer cancel()

	if err := s.manager.Stop(ctx); err != nil {
		s.logger.Warn("[api] error stopping session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sess := s.manager.Current()
	if sess == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) SetChannelHandler(w http.ResponseWriter, r *http.Request) {
	ch, err := chart.ParseChannel(mux.Vars(r)["channel"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.manager.SetChannel(ch)
	s.logger.Info("[api] channel switched", zap.Stringer("channel", ch))
	writeJSON(w, http.StatusOK, map[string]string{"channel": ch.String()})
}
