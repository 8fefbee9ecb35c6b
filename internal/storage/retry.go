package storage

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
)

// transientMarkers identify driver and server errors that resolve on their
// own: connection churn, pool exhaustion, a replica still loading its
// dataset.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"connection pool timeout",
	"loading the dataset",
	"try again",
}

func classifyQueryError(err error) errdefs.Kind {
	if err == nil {
		return errdefs.KindUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errdefs.KindUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errdefs.KindTransient
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return errdefs.KindTransient
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return errdefs.KindTransient
		}
	}
	return errdefs.KindUnknown
}

// retryClient retries transient failures with exponential backoff. Anything
// classified as non-transient aborts immediately via backoff.Permanent.
type retryClient struct {
	inner      Client
	maxRetries uint64
	logger     *logging.Logger
}

func newRetryClient(inner Client, maxRetries int) *retryClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryClient{
		inner:      inner,
		maxRetries: uint64(maxRetries),
		logger:     logging.GetLogger("storage.retry"),
	}
}

func (r *retryClient) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 100 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	exp.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(exp, r.maxRetries), ctx)
}

func (r *retryClient) retryQuery(ctx context.Context, query *GraphQuery, fn func(context.Context, *GraphQuery) (*QueryResult, error)) (*QueryResult, error) {
	var result *QueryResult
	operation := func() error {
		res, err := fn(ctx, query)
		if err != nil {
			if !errdefs.IsTransient(err) {
				return backoff.Permanent(err)
			}
			name := ""
			if query != nil {
				name = query.Name
			}
			r.logger.WarnWithFields("Retrying query after transient failure",
				logging.Field("query_name", name),
				logging.Field("error", err.Error()),
			)
			return err
		}
		result = res
		return nil
	}
	if err := backoff.Retry(operation, r.policy(ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *retryClient) Connect(ctx context.Context) error {
	operation := func() error {
		err := r.inner.Connect(ctx)
		if err != nil && !errdefs.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, r.policy(ctx))
}

func (r *retryClient) Close() error { return r.inner.Close() }

func (r *retryClient) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }

func (r *retryClient) ExecuteRead(ctx context.Context, query *GraphQuery) (*QueryResult, error) {
	return r.retryQuery(ctx, query, r.inner.ExecuteRead)
}

func (r *retryClient) ExecuteWrite(ctx context.Context, query *GraphQuery) (*QueryResult, error) {
	return r.retryQuery(ctx, query, r.inner.ExecuteWrite)
}

func (r *retryClient) InitializeSchema(ctx context.Context) error {
	return r.inner.InitializeSchema(ctx)
}

func (r *retryClient) GetGraphStats(ctx context.Context) (*GraphStats, error) {
	return r.inner.GetGraphStats(ctx)
}

func (r *retryClient) DeleteGraph(ctx context.Context) error {
	return r.inner.DeleteGraph(ctx)
}
