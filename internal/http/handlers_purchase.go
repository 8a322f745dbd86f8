package http

import (
	"net/http"

	"khata/internal/core"
)

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := ParsePage(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := ParseDateRange(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	purchases, err := s.svc.Purchases.List(r.Context(), core.PurchaseFilter{Range: rng, Page: page})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(purchases))
}

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var in core.PurchaseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	purchase, err := s.svc.Purchases.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	purchase, err := s.svc.Purchases.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (s *Server) handleUpdatePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.PurchaseInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	purchase, err := s.svc.Purchases.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (s *Server) handleDeletePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Purchases.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleTodayPurchases(w http.ResponseWriter, r *http.Request) {
	total, err := s.svc.Purchases.TodayTotal(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]core.Money{"today_purchases": total})
}
