package escrow

import (
	"net/http"
	"strconv"
	"time"

	"crowdfund-escrow/pkg/db/pagination"
	"crowdfund-escrow/pkg/errutil"
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

type createCampaignRequest struct {
	MetadataHash           string          `json:"metadata_hash"`
	Goal                   decimal.Decimal `json:"goal"`
	FundingDurationSeconds int64           `json:"funding_duration_seconds"`
	Asset                  PaymentAsset    `json:"asset"`
	Milestones             []MilestoneSpec `json:"milestones"`
}

type contributeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type hashRequest struct {
	Hash string `json:"hash"`
}

type voteRequest struct {
	Approve bool `json:"approve"`
}

type resolveRequest struct {
	InFavorOfCreator bool  `json:"in_favor_of_creator"`
	ReleaseBps       int64 `json:"release_bps"`
}

type accountRequest struct {
	Account string `json:"account"`
}

type poolsRequest struct {
	PoolA string `json:"pool_a"`
	PoolB string `json:"pool_b"`
}

func (h *Handler) Register(mux *runtime.ServeMux) error {
	routes := []struct {
		method, path string
		fn           runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/campaigns", h.createCampaign},
		{http.MethodGet, "/v1/campaigns/{id}", h.getCampaign},
		{http.MethodPost, "/v1/campaigns/{id}/contributions", h.contribute},
		{http.MethodGet, "/v1/campaigns/{id}/contributions/{backer}", h.getContribution},
		{http.MethodPost, "/v1/campaigns/{id}/finalize", h.finalizeFunding},
		{http.MethodPost, "/v1/campaigns/{id}/cancel", h.cancelCampaign},
		{http.MethodPost, "/v1/campaigns/{id}/milestones/current/proof", h.submitProof},
		{http.MethodPost, "/v1/campaigns/{id}/milestones/current/votes", h.vote},
		{http.MethodPost, "/v1/campaigns/{id}/milestones/current/finalize", h.finalizeVoting},
		{http.MethodPost, "/v1/campaigns/{id}/milestones/current/expire", h.expireMilestone},
		{http.MethodPost, "/v1/campaigns/{id}/disputes", h.initiateDispute},
		{http.MethodPost, "/v1/campaigns/{id}/disputes/resolve", h.resolveDispute},
		{http.MethodGet, "/v1/campaigns/{id}/dispute", h.getDispute},
		{http.MethodPost, "/v1/campaigns/{id}/refunds", h.claimRefund},
		{http.MethodGet, "/v1/campaigns/{id}/refunds/{backer}/quote", h.previewRefund},
		{http.MethodGet, "/v1/campaigns/{id}/events", h.listEvents},
		{http.MethodGet, "/v1/creators/{creator}/reputation", h.getReputation},
		{http.MethodGet, "/v1/settings", h.getSettings},
		{http.MethodPost, "/v1/settings/owner/propose", h.proposeOwner},
		{http.MethodPost, "/v1/settings/owner/accept", h.acceptOwnership},
		{http.MethodPut, "/v1/settings/treasury", h.setTreasury},
		{http.MethodPut, "/v1/settings/reward-pools", h.setRewardPools},
		{http.MethodPost, "/v1/settings/arbitrators", h.addArbitrator},
		{http.MethodDelete, "/v1/settings/arbitrators/{account}", h.removeArbitrator},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.fn); err != nil {
			return err
		}
	}
	return nil
}

func respond(w http.ResponseWriter, code int, v any, err error) {
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpapi.WriteJSON(w, code, v)
}

func (h *Handler) createCampaign(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req createCampaignRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	c, err := h.svc.CreateCampaign(r.Context(), middleware.CallerFromRequest(r), CreateCampaignRequest{
		MetadataHash:    req.MetadataHash,
		Goal:            req.Goal,
		FundingDuration: time.Duration(req.FundingDurationSeconds) * time.Second,
		Milestones:      req.Milestones,
		Asset:           req.Asset,
	})
	respond(w, http.StatusCreated, c, err)
}

func (h *Handler) getCampaign(w http.ResponseWriter, r *http.Request, params map[string]string) {
	c, err := h.svc.GetCampaign(r.Context(), params["id"])
	respond(w, http.StatusOK, c, err)
}

func (h *Handler) contribute(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req contributeRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	c, err := h.svc.Contribute(r.Context(), middleware.CallerFromRequest(r), params["id"], req.Amount)
	respond(w, http.StatusCreated, c, err)
}

func (h *Handler) getContribution(w http.ResponseWriter, r *http.Request, params map[string]string) {
	c, err := h.svc.GetContribution(r.Context(), params["id"], params["backer"])
	respond(w, http.StatusOK, c, err)
}

func (h *Handler) finalizeFunding(w http.ResponseWriter, r *http.Request, params map[string]string) {
	c, err := h.svc.FinalizeFunding(r.Context(), params["id"])
	respond(w, http.StatusOK, c, err)
}

func (h *Handler) cancelCampaign(w http.ResponseWriter, r *http.Request, params map[string]string) {
	c, err := h.svc.CancelCampaign(r.Context(), middleware.CallerFromRequest(r), params["id"])
	respond(w, http.StatusOK, c, err)
}

func (h *Handler) submitProof(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req hashRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	m, err := h.svc.SubmitMilestoneProof(r.Context(), middleware.CallerFromRequest(r), params["id"], req.Hash)
	respond(w, http.StatusOK, m, err)
}

func (h *Handler) vote(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req voteRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	m, err := h.svc.VoteOnMilestone(r.Context(), middleware.CallerFromRequest(r), params["id"], req.Approve)
	respond(w, http.StatusOK, m, err)
}

func (h *Handler) finalizeVoting(w http.ResponseWriter, r *http.Request, params map[string]string) {
	m, err := h.svc.FinalizeMilestoneVoting(r.Context(), params["id"])
	respond(w, http.StatusOK, m, err)
}

func (h *Handler) expireMilestone(w http.ResponseWriter, r *http.Request, params map[string]string) {
	m, err := h.svc.ExpireMilestone(r.Context(), params["id"])
	respond(w, http.StatusOK, m, err)
}

func (h *Handler) initiateDispute(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req hashRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	d, err := h.svc.InitiateDispute(r.Context(), middleware.CallerFromRequest(r), params["id"], req.Hash)
	respond(w, http.StatusCreated, d, err)
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req resolveRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	d, err := h.svc.ResolveDispute(r.Context(), middleware.CallerFromRequest(r), params["id"], req.InFavorOfCreator, req.ReleaseBps)
	respond(w, http.StatusOK, d, err)
}

func (h *Handler) getDispute(w http.ResponseWriter, r *http.Request, params map[string]string) {
	d, err := h.svc.GetDispute(r.Context(), params["id"])
	respond(w, http.StatusOK, d, err)
}

func (h *Handler) claimRefund(w http.ResponseWriter, r *http.Request, params map[string]string) {
	receipt, err := h.svc.ClaimRefund(r.Context(), middleware.CallerFromRequest(r), params["id"])
	respond(w, http.StatusOK, receipt, err)
}

func (h *Handler) previewRefund(w http.ResponseWriter, r *http.Request, params map[string]string) {
	q, err := h.svc.PreviewRefund(r.Context(), params["backer"], params["id"])
	respond(w, http.StatusOK, q, err)
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request, params map[string]string) {
	page := pagination.Pagination{Cursor: r.URL.Query().Get("cursor")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, errutil.BadRequest("invalid limit", err))
			return
		}
		page.Limit = limit
	}

	events, info, err := h.svc.ListEvents(r.Context(), params["id"], page)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"data": events, "page_info": info})
}

func (h *Handler) getReputation(w http.ResponseWriter, r *http.Request, params map[string]string) {
	rep, err := h.svc.GetReputation(r.Context(), params["creator"])
	respond(w, http.StatusOK, rep, err)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	st, err := h.svc.GetSettings(r.Context())
	respond(w, http.StatusOK, st, err)
}

func (h *Handler) proposeOwner(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req accountRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	st, err := h.svc.ProposeOwner(r.Context(), middleware.CallerFromRequest(r), req.Account)
	respond(w, http.StatusOK, st, err)
}

func (h *Handler) acceptOwnership(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	st, err := h.svc.AcceptOwnership(r.Context(), middleware.CallerFromRequest(r))
	respond(w, http.StatusOK, st, err)
}

func (h *Handler) setTreasury(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req accountRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	st, err := h.svc.SetTreasury(r.Context(), middleware.CallerFromRequest(r), req.Account)
	respond(w, http.StatusOK, st, err)
}

func (h *Handler) setRewardPools(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req poolsRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	st, err := h.svc.SetRewardPools(r.Context(), middleware.CallerFromRequest(r), req.PoolA, req.PoolB)
	respond(w, http.StatusOK, st, err)
}

func (h *Handler) addArbitrator(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req accountRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	err := h.svc.AddArbitrator(r.Context(), middleware.CallerFromRequest(r), req.Account)
	respond(w, http.StatusNoContent, nil, err)
}

func (h *Handler) removeArbitrator(w http.ResponseWriter, r *http.Request, params map[string]string) {
	err := h.svc.RemoveArbitrator(r.Context(), middleware.CallerFromRequest(r), params["account"])
	respond(w, http.StatusNoContent, nil, err)
}
