package oracle

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

func (h *Handler) Register(mux *runtime.ServeMux) error {
	if err := mux.HandlePath(http.MethodPut, "/v1/oracle/prices/{asset}", h.setPrice); err != nil {
		return err
	}
	return mux.HandlePath(http.MethodGet, "/v1/oracle/prices/{asset}", h.getPrice)
}

func (h *Handler) setPrice(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	feed, err := h.svc.SetPrice(r.Context(), middleware.CallerFromRequest(r), params["asset"], req.Price)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, feed)
}

func (h *Handler) getPrice(w http.ResponseWriter, r *http.Request, params map[string]string) {
	price, err := h.svc.GetPrice(r.Context(), params["asset"])
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"asset": params["asset"],
		"price": price,
	})
}
