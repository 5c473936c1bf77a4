// Package lockutils is the owner lock utility package
package lockutils

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/ownerlock"
	"github.com/engramlabs/engram/pkg/ownerlock/inprocess"
	ownerredis "github.com/engramlabs/engram/pkg/ownerlock/redis"
)

type NewLockerOpts struct {
	ProviderType string
	TargetURL    string

	// TTL and RetryDelay apply to backends that lease locks.
	TTL        time.Duration
	RetryDelay time.Duration

	Logger *zap.Logger
}

func NewLocker(ctx context.Context, o *NewLockerOpts) (ownerlock.Locker, error) {
	switch o.ProviderType {
	case "inprocess":
		return inprocess.NewLocker(), nil
	case "redis":
		return ownerredis.NewLocker(ctx, ownerredis.Config{
			URL:        o.TargetURL,
			TTL:        o.TTL,
			RetryDelay: o.RetryDelay,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported owner lock provider: %s", o.ProviderType)
	}
}
