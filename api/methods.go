package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/spooky-finn/orderbook-sync/domain"
	"github.com/spooky-finn/orderbook-sync/helpers"
	"github.com/spooky-finn/orderbook-sync/usecase"
	"go.uber.org/zap"
)

type trackRequest struct {
	Symbol string `json:"symbol"`
}

type symbolsResponse struct {
	Symbols []string `json:"symbols"`
}

type orderResponse struct {
	domain.LedgerEntry
	DisplayStatus domain.OrderStatus `json:"displayStatus"`
}

type ordersResponse struct {
	Orders []orderResponse            `json:"orders"`
	Counts map[domain.OrderStatus]int `json:"counts"`
}

type statusResponse struct {
	Connectivity map[domain.Source]domain.ConnectionState `json:"connectivity"`
	Symbols      []string                                 `json:"symbols"`
}

func newOrderResponse(entry domain.LedgerEntry) orderResponse {
	return orderResponse{LedgerEntry: entry, DisplayStatus: entry.DisplayStatus()}
}

func (s *Server) handleGetSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.dashboard.Symbols(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, symbolsResponse{Symbols: symbols})
}

func (s *Server) handleTrackSymbol(w http.ResponseWriter, r *http.Request) {
	var body trackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}

	symbol, err := domain.NormalizeSymbol(body.Symbol)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	tracked, err := s.dashboard.Symbols(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.validationService.CanTrack(symbol, tracked); err != nil {
		s.respondErr(w, err)
		return
	}

	if err := s.dashboard.Track(r.Context(), symbol); err != nil {
		s.respondErr(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, trackRequest{Symbol: symbol})
}

func (s *Server) handleUntrackSymbol(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Untrack(r.Context(), mux.Vars(r)["symbol"]); err != nil {
		s.respondErr(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetSymbolView(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			helpers.RespondError(w, http.StatusBadRequest, "invalid depth", "depth must be a positive integer")
			return
		}
		depth = n
	}

	view, err := s.dashboard.View(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if depth > 0 && view.Book != nil {
		view.Book = view.Book.TopLevels(depth)
	}
	helpers.RespondJSON(w, http.StatusOK, view)
}

func (s *Server) handleRefreshSymbol(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Refresh(r.Context(), mux.Vars(r)["symbol"]); err != nil {
		s.respondErr(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusAccepted, nil)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	summary, err := s.dashboard.Orders(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		s.respondErr(w, err)
		return
	}

	orders := make([]orderResponse, 0, len(summary.Orders))
	for _, entry := range summary.Orders {
		orders = append(orders, newOrderResponse(entry))
	}
	helpers.RespondJSON(w, http.StatusOK, ordersResponse{Orders: orders, Counts: summary.Counts})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body orderRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}

	req, err := s.validationService.OrderRequest(body)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	entry, err := s.dashboard.SubmitOrder(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusCreated, newOrderResponse(entry))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	entry, err := s.dashboard.CancelOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, newOrderResponse(entry))
}

func (s *Server) handleEvictOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.EvictOrder(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondErr(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	connectivity, err := s.dashboard.Connectivity(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	symbols, err := s.dashboard.Symbols(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, statusResponse{Connectivity: connectivity, Symbols: symbols})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status, title := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	helpers.RespondError(w, status, title, err.Error())
}

func statusFor(err error) (int, string) {
	switch {
	case domain.IsErrValidation(err):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, domain.ErrUnknownOrder):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, domain.ErrMarketViewNotFound):
		return http.StatusNotFound, "symbol not tracked"
	case domain.IsErrCancelRejected(err):
		return http.StatusConflict, "cancel rejected"
	case domain.IsErrConnectivity(err):
		return http.StatusBadGateway, "upstream unavailable"
	case errors.Is(err, usecase.ErrControllerStopped):
		return http.StatusServiceUnavailable, "service stopping"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
