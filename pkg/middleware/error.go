package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"crowdfund-escrow/pkg/errutil"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// WriteError renders err as the shared JSON error envelope.
func WriteError(w http.ResponseWriter, err error) {
	code := errutil.HTTPStatusOf(err)

	var body interface{}
	var base errutil.BaseError
	if errors.As(err, &base) {
		body = base.JSON()
	} else {
		body = errutil.BaseError{Code: errutil.StatusInternal, Message: err.Error()}.JSON()
	}

	if code >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Int("status", code), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// ErrorHandler plugs WriteError into the gateway mux.
func ErrorHandler(ctx context.Context, _ *runtime.ServeMux, _ runtime.Marshaler, w http.ResponseWriter, _ *http.Request, err error) {
	WriteError(w, err)
}
