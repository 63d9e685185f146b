package main

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// requestTimeout bounds the bus round trip for every CLI subcommand;
// SendCommand's own 30s deadline is the backstop this never reaches in
// the common case.
const requestTimeout = 10 * time.Second

func ghostContextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func dialRemoteClient(addr string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}
