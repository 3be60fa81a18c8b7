package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errVoteLocked = TooEarly("vote locked", nil, WithReason("VOTE_LOCKED"))

func TestIsMatchesReasonThroughWrapping(t *testing.T) {
	err := fmt.Errorf("vote: %w", errVoteLocked.(BaseError).With(WithDetails(Detail{Field: "voter", Message: "0xabc"})))

	require.ErrorIs(t, err, errVoteLocked)
	require.NotErrorIs(t, err, TooEarly("other", nil, WithReason("OTHER")))
}

func TestConstructorKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Internal("save campaign", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "boom")
}

func TestHTTPStatusOf(t *testing.T) {
	require.Equal(t, http.StatusTooEarly, HTTPStatusOf(errVoteLocked))
	require.Equal(t, http.StatusGone, HTTPStatusOf(Expired("refund window closed", nil)))
	require.Equal(t, http.StatusPaymentRequired, HTTPStatusOf(Insufficient("balance", nil)))
	require.Equal(t, http.StatusInternalServerError, HTTPStatusOf(errors.New("plain")))
	require.Equal(t, http.StatusGatewayTimeout, HTTPStatusOf(context.DeadlineExceeded))
}

func TestToGRPCError(t *testing.T) {
	require.Nil(t, ToGRPCError(nil))
	require.Equal(t, codes.FailedPrecondition, status.Code(ToGRPCError(UnprocessableEntity("bad state", nil))))
	require.Equal(t, codes.PermissionDenied, status.Code(ToGRPCError(Forbidden("not creator", nil))))
	require.Equal(t, codes.Canceled, status.Code(ToGRPCError(context.Canceled)))
	require.Equal(t, codes.Internal, status.Code(ToGRPCError(errors.New("x"))))
}
