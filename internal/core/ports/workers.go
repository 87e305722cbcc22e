package ports

import "context"

//go:generate mockgen -source=workers.go -destination=mocks/mock_workers.go -package=mocks

// WorkerPool bounds the concurrency of commands sharing a persistent worker.
type WorkerPool interface {
	// Run executes fn once a worker slot is free.
	Run(ctx context.Context, fn func(ctx context.Context) error) error
	// Capacity returns the number of slots.
	Capacity() int
}

// WorkerPools maps pool names to pools.
type WorkerPools interface {
	// Pool returns the named pool, failing with ErrUnknownWorkerPool.
	Pool(name string) (WorkerPool, error)
}
