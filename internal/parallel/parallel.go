// Package parallel provides the worker-splitting helpers the CPU
// backend uses inside its convolution and pooling kernels. Parallelism
// stays internal to the backend: layer contracts remain synchronous
// and single-threaded.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how loops are split across goroutines.
type Config struct {
	Enabled      bool // run loops concurrently at all
	NumWorkers   int  // goroutines to split across
	MinChunkSize int  // below this many items, stay sequential
}

// DefaultConfig sizes the pool from the CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// Sequential disables concurrent execution entirely.
func Sequential() Config {
	return Config{}
}

// For executes f(i) for i in [0, n). Iterations must be independent:
// chunks run concurrently when the config allows it.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForBatch splits a batch*channels iteration, the common shape of
// convolution and pooling loops.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	For(batch*channels, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
