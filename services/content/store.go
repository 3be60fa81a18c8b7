package content

import (
	"context"
	"net/http"

	"crowdfund-escrow/pkg/config"

	"github.com/minio/minio-go/v7"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("content.store",
	fx.Provide(NewStore),
)

// Store resolves content hashes against an object bucket. Objects are keyed
// by the lowercase hex hash.
type Store struct {
	client *minio.Client
	bucket string
}

type Params struct {
	fx.In
	Client *minio.Client `optional:"true"`
	Config *config.Config
}

func NewStore(p Params) *Store {
	return &Store{client: p.Client, bucket: p.Config.Minio.BucketName}
}

// Enabled reports whether a bucket is configured. A disabled store does not
// gate anything.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}

	_, err := s.client.StatObject(ctx, s.bucket, hash, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	zap.L().Error("content lookup failed",
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("bucket", s.bucket),
		zap.String("hash", hash),
		zap.Error(err),
	)
	return false, err
}
