package usecase

import (
	"context"
	"time"

	"github.com/Xolta0/shopify/internal/entity"
)

// sleepOrDone waits for d or returns early with ctx.Err().
func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type nopClaims struct{}

func (nopClaims) TryClaim(context.Context, string) (bool, error) { return true, nil }
func (nopClaims) Release(context.Context, string) error         { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, entity.SagaEvent) error { return nil }
