// Package redis provides the remote artifact cache and the shared event store.
package redis

import (
	"context"

	goredis "github.com/go-redis/redis/v8"
	"go.trai.ch/rig/internal/core/domain"
	"go.trai.ch/zerr"
)

const keyPrefix = "rig:"

// Dial connects to addr and checks the connection with PING.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, zerr.With(zerr.Wrap(err, domain.ErrCacheUnavailable.Error()), "addr", addr)
	}
	return client, nil
}
