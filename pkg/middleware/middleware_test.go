package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"crowdfund-escrow/pkg/errutil"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestCallerAnnotator(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerHeader, " alice ")

	md := CallerAnnotator(context.Background(), req)
	require.Equal(t, []string{"alice"}, md.Get(CallerMetadataKey))
}

func TestCallerInterceptor(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(CallerMetadataKey, "bob"))

	var got string
	_, err := CallerInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		got, _ = CallerFromContext(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, "bob", got)

	_, ok := CallerFromContext(context.Background())
	require.False(t, ok)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errutil.Forbidden("only the creator may cancel", nil, errutil.WithReason("NOT_CREATOR")))

	require.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Error struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "FORBIDDEN", body.Error.Code)
	require.Equal(t, "NOT_CREATOR", body.Error.Reason)
}
