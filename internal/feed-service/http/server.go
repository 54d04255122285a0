package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/internal/feed/privacy"
	"github.com/radieske/bet-feed/pkg/contracts/events"
)

// TopWinnersLimit é o tamanho do ranking por jogo.
const TopWinnersLimit = 3

type WindowReader interface {
	Read(ctx context.Context, tab feed.Tab) ([]feed.Item, error)
}

type WinnerSource interface {
	TopWinners(ctx context.Context, game string, cat feed.WinnerCategory, limit int) ([]events.BetSettled, error)
}

type BatchTransformer interface {
	TransformAll(ctx context.Context, bets []events.BetSettled) []feed.Item
}

// API expõe os endpoints REST de leitura do feed.
// Toda resposta passa pelo Masker antes de sair.
type API struct {
	Windows     WindowReader     // janelas por aba (Redis)
	Winners     WinnerSource     // consultas derivadas (Postgres)
	Transformer BatchTransformer // linhas do banco -> itens do feed
	Masker      *privacy.Masker
	Log         *zap.Logger
}

type feedResponse struct {
	Tab   feed.Tab          `json:"tab"`
	Items []privacy.Visible `json:"items"`
}

type winnersResponse struct {
	Game     string              `json:"game"`
	Category feed.WinnerCategory `json:"category"`
	Items    []privacy.Visible   `json:"items"`
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/feed/{tab}", a.getFeed)                     // snapshot mascarado da janela
	r.Get("/v1/games/{game}/top-winners", a.getTopWinners) // maiores ganhadores de um jogo
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func (a *API) getFeed(w http.ResponseWriter, r *http.Request) {
	tab, err := feed.ParseTab(chi.URLParam(r, "tab"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TAB", err.Error())
		return
	}

	items, err := a.Windows.Read(r.Context(), tab)
	if err != nil {
		a.logger().Warn("window read failed", zap.String("tab", tab.String()), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "feed temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Tab: tab, Items: a.Masker.Public(r.Context(), items)})
}

func (a *API) getTopWinners(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")
	cat, err := feed.ParseWinnerCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CATEGORY", err.Error())
		return
	}

	rows, err := a.Winners.TopWinners(r.Context(), game, cat, TopWinnersLimit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		a.logger().Warn("top winners query failed", zap.String("game", game), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "query failed")
		return
	}
	items := a.Transformer.TransformAll(r.Context(), rows)
	writeJSON(w, http.StatusOK, winnersResponse{Game: game, Category: cat, Items: a.Masker.Public(r.Context(), items)})
}

func (a *API) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}
