package web

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jaminalder/tictactoe-history/internal/app"
	"github.com/jaminalder/tictactoe-history/internal/domain"
)

type handlers struct {
	svc       *app.Service
	tpl       *templates
	log       *slog.Logger
	heartbeat time.Duration
}

// renderSession is also the service's broadcast renderer.
func (h *handlers) renderSession(gs app.Session) []byte {
	b, err := renderTemplate(h.tpl.board, "", newBoardView(gs))
	if err != nil {
		h.log.Error("could not render board", "game", gs.ID, "error", err)
		return nil
	}
	return b
}

func (h *handlers) writeHTML(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *handlers) page(w http.ResponseWriter, name string, t *template.Template, data any) {
	b, err := renderTemplate(t, "base", data)
	if err != nil {
		h.log.Error("could not render page", "page", name, "error", err)
		http.Error(w, "failed to render", http.StatusInternalServerError)
		return
	}
	h.writeHTML(w, b)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	h.page(w, "index", h.tpl.index, nil)
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	gs, err := h.svc.CreateSession()
	if err != nil {
		h.log.Error("could not create game", "error", err)
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/game/"+gs.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	gs, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.page(w, "game", h.tpl.game, newBoardView(*gs))
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_ = r.ParseForm()
	pos, err := strconv.Atoi(r.Form.Get("id"))
	if err != nil {
		// the engine rejects it like any other bad position
		pos = -1
	}
	gs, err := h.svc.Play(id, pos)
	h.respond(w, r, gs, err)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	gs, err := h.svc.Reset(chi.URLParam(r, "id"))
	h.respond(w, r, gs, err)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_ = r.ParseForm()
	snapshot, err := domain.ParseBoard(r.Form.Get("board"))
	if err != nil {
		h.log.Debug("bad history snapshot", "game", id, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	gs, err := h.svc.Jump(id, snapshot)
	h.respond(w, r, gs, err)
}

// respond re-renders the board after an engine call. Invalid moves are not
// reported to the player; the squares they could not use are disabled anyway.
// Plain form posts (no htmx) are redirected back to the game page.
func (h *handlers) respond(w http.ResponseWriter, r *http.Request, gs *app.Session, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, domain.ErrInvalidMove):
		// ignored
	case err != nil:
		h.log.Error("game update failed", "error", err)
		http.Error(w, "failed to update", http.StatusInternalServerError)
		return
	}
	if gs == nil {
		http.NotFound(w, r)
		return
	}
	if r.Header.Get("HX-Request") == "" {
		http.Redirect(w, r, "/game/"+gs.ID, http.StatusSeeOther)
		return
	}
	h.writeHTML(w, h.renderSession(*gs))
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// In tests or non-EventSource requests, just acknowledge headers and return
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub := h.svc.Subscribe(ctx, id)
	defer unsub()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	// Initial flush of headers
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case b, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, "board", b); err != nil {
				h.log.Debug("event stream closed", "game", id, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one server-sent event. Every line of data gets its own
// "data:" field so multi-line markup survives.
func writeEvent(w io.Writer, event string, data []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", event)
	for _, line := range bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n")) {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteString("\n")
	_, err := w.Write(buf.Bytes())
	return err
}
