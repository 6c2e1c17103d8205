package consumer

import (
	"context"
	"fmt"

	"github.com/danmuck/opencab/internal/broadcast"
	"github.com/danmuck/opencab/internal/discovery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Result is one provider's answer. Exactly one of Value and Err is meaningful.
type Result[T any] struct {
	Owner    string
	Endpoint string
	Value    T
	Err      error
}

// CallAll calls fn once per provider of authority, in discovery order. A
// failing or panicking provider only fails its own result.
func CallAll[T any](
	ctx context.Context,
	src broadcast.DirectorySource,
	authority string,
	parallelism int,
	fn func(ctx context.Context, endpoint string) (T, error),
) []Result[T] {
	targets := discovery.Discover(src.Directory(), discovery.KindProvider, authority)
	results := make([]Result[T], len(targets))

	var g errgroup.Group
	if parallelism < 1 {
		parallelism = 1
	}
	g.SetLimit(parallelism)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = callOne(ctx, target, fn)
			return nil
		})
	}
	_ = g.Wait()
	log.Debug().Msgf("consumer.CallAll authority=%s providers=%d", authority, len(targets))
	return results
}

func callOne[T any](
	ctx context.Context,
	target discovery.Descriptor,
	fn func(ctx context.Context, endpoint string) (T, error),
) (res Result[T]) {
	res = Result[T]{Owner: target.Owner, Endpoint: target.Endpoint}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("consumer: call %s panicked: %v", target, r)
		}
	}()
	res.Value, res.Err = fn(ctx, target.Endpoint)
	if res.Err != nil {
		log.Warn().Err(res.Err).Msgf("consumer.CallAll endpoint=%s", target.Endpoint)
	}
	return res
}
