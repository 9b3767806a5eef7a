package web

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jaminalder/tictactoe-history/internal/app"
	"github.com/jaminalder/tictactoe-history/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*app.Service, http.Handler) {
	t.Helper()
	s := app.NewService()
	h := NewServer(s)
	return s, h
}

func newGame(t *testing.T, s *app.Service) string {
	t.Helper()
	gs, err := s.CreateSession()
	require.NoError(t, err)
	return gs.ID
}

// post sends a form the way htmx does and returns the recorder.
func post(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestIndexPage(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "<!doctype html>")
	assert.Contains(t, body, `action="/game"`)
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestCreateRedirectsToGame(t *testing.T) {
	svc, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/game", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc := rr.Result().Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/game/"), "location %q", loc)
	_, ok := svc.Get(strings.TrimPrefix(loc, "/game/"))
	assert.True(t, ok)
}

func TestGamePageRendersEmptyBoard(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/game/"+url.PathEscape(id), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `hx-ext="sse"`)
	assert.Contains(t, body, "/game/"+id+"/events")
	assert.Contains(t, body, `id="board"`)
	assert.Equal(t, 9, strings.Count(body, `class="game-square"`))
	assert.NotContains(t, body, "disabled")
	assert.NotContains(t, body, "Game History")
	assert.Contains(t, body, `id="play-again"`)
	assert.Contains(t, body, "X to move")
}

func TestUnknownGameIsNotFound(t *testing.T) {
	_, h := newTestServer(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/game/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = post(h, "/game/missing/play", url.Values{"id": {"0"}})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = post(h, "/game/missing/reset", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = post(h, "/game/missing/history", url.Values{"board": {",,,,,,,,"}})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/game/missing/events", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPlayEndpointUpdatesStateAndReturnsFragment(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)

	rr := post(h, "/game/"+id+"/play", url.Values{"id": {"4"}})

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.HasPrefix(body, `<div id="board">`), "fragment only, got %q", body)
	assert.Contains(t, body, `aria-pressed="true" disabled>X</button>`)
	assert.Contains(t, body, "Game History")
	assert.Contains(t, body, "Go to move # 1")
	assert.Contains(t, body, `data-history=",,,,X,,,,"`)
	assert.Contains(t, body, "O to move")

	latest, _ := svc.Get(id)
	assert.Equal(t, 1, latest.State.Moves())
	assert.Equal(t, domain.X, latest.State.Board[4])
}

func TestPlayWithoutHTMXRedirects(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)

	form := url.Values{"id": {"0"}}
	req := httptest.NewRequest(http.MethodPost, "/game/"+id+"/play", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/game/"+id, rr.Result().Header.Get("Location"))
	latest, _ := svc.Get(id)
	assert.Equal(t, domain.X, latest.State.Board[0])
}

func TestInvalidMovesAreIgnored(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)
	_, err := svc.Play(id, 0)
	require.NoError(t, err)

	for _, v := range []string{"0", "9", "-3", "abc", ""} {
		rr := post(h, "/game/"+id+"/play", url.Values{"id": {v}})
		assert.Equal(t, http.StatusOK, rr.Code, "id %q", v)
		assert.NotContains(t, rr.Body.String(), "alert", "id %q", v)
	}

	latest, _ := svc.Get(id)
	assert.Equal(t, 1, latest.State.Moves())
	assert.Equal(t, domain.O, latest.State.Turn)
}

func TestWinnerDisablesAllSquares(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)
	for _, pos := range []string{"0", "3", "1", "4", "2"} {
		rr := post(h, "/game/"+id+"/play", url.Values{"id": {pos}})
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := post(h, "/game/"+id+"/play", url.Values{"id": {"5"}})

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "X is the winner!")
	assert.Equal(t, 9, strings.Count(body, " disabled>"))
	assert.Contains(t, body, "Go to move # 5")
	assert.NotContains(t, body, "Go to move # 6")

	latest, _ := svc.Get(id)
	assert.Equal(t, domain.Empty, latest.State.Board[5])
}

func TestDrawIsAnnounced(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)

	var rr *httptest.ResponseRecorder
	for _, pos := range []string{"0", "1", "2", "4", "3", "5", "7", "6", "8"} {
		rr = post(h, "/game/"+id+"/play", url.Values{"id": {pos}})
		require.Equal(t, http.StatusOK, rr.Code)
	}

	body := rr.Body.String()
	assert.Contains(t, body, "It's a draw!")
	assert.NotContains(t, body, "is the winner!")
}

func TestResetEndpoint(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)
	_, err := svc.Play(id, 0)
	require.NoError(t, err)

	rr := post(h, "/game/"+id+"/reset", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "Game History")
	latest, _ := svc.Get(id)
	assert.Equal(t, domain.Board{}, latest.State.Board)
	assert.Equal(t, domain.X, latest.State.Turn)
	assert.Empty(t, latest.State.History)
}

func TestHistoryEndpointJumpsToSnapshot(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)
	for _, pos := range []int{4, 0, 8} {
		_, err := svc.Play(id, pos)
		require.NoError(t, err)
	}
	before, _ := svc.Get(id)

	rr := post(h, "/game/"+id+"/history", url.Values{"board": {domain.FormatBoard(before.State.History[0])}})

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Go to move # 3")
	assert.Equal(t, 1, strings.Count(body, `aria-pressed="true"`))

	latest, _ := svc.Get(id)
	assert.Equal(t, before.State.History[0], latest.State.Board)
	assert.Equal(t, before.State.History, latest.State.History)
	assert.Equal(t, before.State.Turn, latest.State.Turn)
}

func TestHistoryEndpointRejectsMalformedSnapshot(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)

	rr := post(h, "/game/"+id+"/history", url.Values{"board": {"X,O"}})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	_, h := newTestServer(t)
	// create a game via POST
	reqCreate := httptest.NewRequest(http.MethodPost, "/game", nil)
	rrCreate := httptest.NewRecorder()
	h.ServeHTTP(rrCreate, reqCreate)
	loc := rrCreate.Result().Header.Get("Location")
	require.NotEmpty(t, loc)

	req := httptest.NewRequest(http.MethodGet, loc+"/events", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Result().Header.Get("Content-Type"), "text/event-stream"))
}

func TestEventsStreamBoardUpdates(t *testing.T) {
	svc, h := newTestServer(t)
	id := newGame(t, svc)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/game/"+id+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	// headers are flushed only after the stream has subscribed
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = svc.Play(id, 4)
	require.NoError(t, err)

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	require.NotEmpty(t, lines)
	assert.Equal(t, "event: board", lines[0])
	assert.Equal(t, `data: <div id="board">`, lines[1])
	for _, line := range lines[1:] {
		assert.True(t, strings.HasPrefix(line, "data: "), "line %q", line)
	}
	assert.Contains(t, strings.Join(lines, "\n"), `data-history=",,,,X,,,,"`)
}

func TestWriteEvent(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, writeEvent(&sb, "board", []byte("<a>\n<b>\n")))
	assert.Equal(t, "event: board\ndata: <a>\ndata: <b>\n\n", sb.String())
}
