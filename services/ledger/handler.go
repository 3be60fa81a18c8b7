package ledger

import (
	"net/http"

	"crowdfund-escrow/pkg/httpapi"
	"crowdfund-escrow/pkg/middleware"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type mintRequest struct {
	Account   string          `json:"account"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type approveRequest struct {
	Spender string          `json:"spender"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	To     string          `json:"to"`
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, path string
		fn           runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/ledger/mint", h.mint},
		{http.MethodPost, "/v1/ledger/approvals", h.approve},
		{http.MethodPost, "/v1/ledger/transfers", h.transfer},
		{http.MethodGet, "/v1/ledger/accounts/{account}/balances/{asset}", h.balance},
		{http.MethodGet, "/v1/ledger/accounts/{account}/entries", h.entries},
		{http.MethodGet, "/v1/ledger/accounts/{account}/verify", h.verify},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req mintRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	entry, err := h.svc.Mint(r.Context(), middleware.CallerFromRequest(r), req.Account, req.Asset, req.Amount, req.Reference)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req approveRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.svc.Approve(r.Context(), middleware.CallerFromRequest(r), req.Spender, req.Asset, req.Amount); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req transferRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.svc.Transfer(r.Context(), middleware.CallerFromRequest(r), req.To, req.Asset, req.Amount); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request, params map[string]string) {
	amount, err := h.svc.GetBalance(r.Context(), params["account"], params["asset"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"account": params["account"],
		"asset":   params["asset"],
		"amount":  amount,
	})
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request, params map[string]string) {
	entries, err := h.svc.ListEntries(r.Context(), params["account"], r.URL.Query().Get("asset"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, params map[string]string) {
	valid, err := h.svc.VerifyChain(r.Context(), params["account"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}
