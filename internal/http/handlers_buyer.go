package http

import (
	"net/http"

	"khata/internal/core"
)

func (s *Server) handleListBuyers(w http.ResponseWriter, r *http.Request) {
	page, err := ParsePage(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	buyers, err := s.svc.Buyers.List(r.Context(), core.BuyerFilter{
		Search: sanitizeInput(r.URL.Query().Get("search")),
		Page:   page,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(buyers))
}

func (s *Server) handleListBuyersWithOutstanding(w http.ResponseWriter, r *http.Request) {
	balances, err := s.svc.Buyers.ListWithOutstanding(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(balances))
}

func (s *Server) handleCreateBuyer(w http.ResponseWriter, r *http.Request) {
	var in core.BuyerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	buyer, err := s.svc.Buyers.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, buyer)
}

func (s *Server) handleGetBuyer(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	buyer, err := s.svc.Buyers.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buyer)
}

func (s *Server) handleUpdateBuyer(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.BuyerInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	buyer, err := s.svc.Buyers.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buyer)
}

func (s *Server) handleDeleteBuyer(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Buyers.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	statement, err := s.svc.Ledger.GetLedger(r.Context(), id, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if statement.Entries == nil {
		statement.Entries = []core.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, statement)
}

type outstandingResponse struct {
	BuyerID     int64      `json:"buyer_id"`
	Outstanding core.Money `json:"outstanding_balance"`
}

func (s *Server) handleGetOutstanding(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	outstanding, err := s.svc.Ledger.GetOutstanding(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outstandingResponse{BuyerID: id, Outstanding: outstanding})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	payments, err := s.svc.Ledger.ListPayments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(payments))
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.PaymentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := s.svc.Ledger.RecordPayment(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	buyerID, err := PathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	paymentID, err := PathID(r, "pid")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Ledger.DeletePayment(r.Context(), buyerID, paymentID); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
