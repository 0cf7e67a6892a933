package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

type stubSource struct {
	states []domain.MergedState
}

func (s *stubSource) Games(context.Context, string) ([]string, error) {
	return []string{"g1"}, nil
}

func (s *stubSource) Load(_ context.Context, sport, gameID string) ([]domain.MergedState, error) {
	if len(s.states) == 0 {
		return nil, fmt.Errorf("no recording for %s/%s", sport, gameID)
	}
	return s.states, nil
}

func recordedGame() []domain.MergedState {
	base := time.Date(2026, 1, 15, 20, 0, 0, 0, time.UTC)
	var states []domain.MergedState
	for i := 0; i < 3; i++ {
		states = append(states, domain.MergedState{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			GameID:    "g1",
			ScoreHome: i * 10,
			Status:    domain.GameInProgress,
			Markets:   []domain.MarketSnapshot{{MarketID: "MKT-A", YesAskProb: 0.5}},
		})
	}
	return states
}

func postBacktest(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/backtest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleBacktest(rec, req)
	return rec
}

func TestHandleBacktest_RunsAndReturnsSummary(t *testing.T) {
	srv := New(":0", &stubSource{states: recordedGame()}, strategy.DefaultRegistry(), nil)

	rec := postBacktest(t, srv, `{"strategy":"price_logger","config":{"sport":"nba","game_ids":["g1"]}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp backtestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "nba", resp.Sport)
	assert.Equal(t, 1, resp.Games)
	assert.Equal(t, 0, resp.Failed)
}

func TestHandleBacktest_UnknownStrategyIs400(t *testing.T) {
	srv := New(":0", &stubSource{states: recordedGame()}, strategy.DefaultRegistry(), nil)

	rec := postBacktest(t, srv, `{"strategy":"nope","config":{"sport":"nba"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "nope")
}

func TestHandleBacktest_MissingFields(t *testing.T) {
	srv := New(":0", &stubSource{}, strategy.DefaultRegistry(), nil)

	rec := postBacktest(t, srv, `{"config":{"sport":"nba"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postBacktest(t, srv, `{"strategy":"price_logger","config":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBacktest_RejectsGet(t *testing.T) {
	srv := New(":0", &stubSource{}, strategy.DefaultRegistry(), nil)

	req := httptest.NewRequest(http.MethodGet, "/backtest", nil)
	rec := httptest.NewRecorder()
	srv.handleBacktest(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestHandleBacktest_FailedGameStillReported(t *testing.T) {
	// La fuente lista g1 pero su grabación no carga: el run responde
	// 200 con el fallo contabilizado, no un 500.
	srv := New(":0", &stubSource{}, strategy.DefaultRegistry(), nil)

	rec := postBacktest(t, srv, `{"strategy":"price_logger","config":{"sport":"nba"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp backtestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Failed)
}
