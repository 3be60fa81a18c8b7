package escrow

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/stretchr/testify/require"

	"crowdfund-escrow/pkg/middleware"
)

func newTestMux(t *testing.T, e *env) *runtime.ServeMux {
	t.Helper()
	mux := runtime.NewServeMux()
	require.NoError(t, NewHandler(e.svc).Register(mux))
	return mux
}

func doJSON(t *testing.T, mux http.Handler, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error struct {
		Code   string `json:"code"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func TestHandlerCampaignFlow(t *testing.T) {
	e := newEnv(t)
	mux := newTestMux(t, e)
	e.fund(t, "creator", AssetStable, USD(1000))

	req := e.campaignRequest(1000)
	rec := doJSON(t, mux, http.MethodPost, "/v1/campaigns", "creator", createCampaignRequest{
		MetadataHash:           req.MetadataHash,
		Goal:                   req.Goal,
		FundingDurationSeconds: int64(req.FundingDuration.Seconds()),
		Asset:                  req.Asset,
		Milestones:             req.Milestones,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, CampaignStatusFunding, created.Status)

	rec = doJSON(t, mux, http.MethodGet, "/v1/campaigns/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		ID         string       `json:"id"`
		Milestones []*Milestone `json:"milestones"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, created.ID, view.ID)
	require.Len(t, view.Milestones, 3)

	rec = doJSON(t, mux, http.MethodPost, "/v1/campaigns/"+created.ID+"/contributions", "", contributeRequest{Amount: USD(100)})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "MISSING_CALLER", body.Error.Reason)

	e.fund(t, "alice", AssetStable, USD(100))
	rec = doJSON(t, mux, http.MethodPost, "/v1/campaigns/"+created.ID+"/contributions", "alice", contributeRequest{Amount: USD(100)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, mux, http.MethodGet, "/v1/campaigns/"+created.ID+"/events?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data     []*OutboxEvent `json:"data"`
		PageInfo struct {
			HasMore bool `json:"has_more"`
		} `json:"page_info"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	require.True(t, page.PageInfo.HasMore)

	rec = doJSON(t, mux, http.MethodGet, "/v1/campaigns/"+created.ID+"/events?limit=x", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReputationAndSettings(t *testing.T) {
	e := newEnv(t)
	mux := newTestMux(t, e)

	rec := doJSON(t, mux, http.MethodGet, "/v1/creators/nobody/reputation", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep ReputationView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.True(t, rep.CanCreate)
	requireDecimal(t, USD(10_000), rep.GoalCeiling)

	rec = doJSON(t, mux, http.MethodPut, "/v1/settings/treasury", "mallory", accountRequest{Account: "vault"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/settings/arbitrators", "owner", accountRequest{Account: "dave"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/v1/settings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st SettingsView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, []string{"arbiter", "dave"}, st.Arbitrators)

	rec = doJSON(t, mux, http.MethodGet, "/v1/campaigns/404", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
