package http

import (
	"net/http"
	"strings"

	"khata/internal/core"
)

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
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
	buyerID, err := ParseIDParam(query, "buyer_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sales, err := s.svc.Sales.List(r.Context(), core.SaleFilter{
		Range:       rng,
		BuyerID:     buyerID,
		PaymentType: core.PaymentType(strings.TrimSpace(query.Get("payment_type"))),
		Page:        page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sales))
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var in core.SaleInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.svc.Sales.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.svc.Sales.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) handleUpdateSale(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var upd core.SaleUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.svc.Sales.Update(r.Context(), id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Sales.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleTodaySales(w http.ResponseWriter, r *http.Request) {
	total, err := s.svc.Sales.TodayTotal(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]core.Money{"today_sales": total})
}
