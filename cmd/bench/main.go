// Command bench runs a synthetic append/read/pin workload against the
// cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/IvanBrykalov/logcache/cache"
	pmet "github.com/IvanBrykalov/logcache/metrics/prom"
	"github.com/IvanBrykalov/logcache/op"
	"github.com/IvanBrykalov/logcache/wal"
)

func main() {
	// ---- Flags ----
	var (
		walDir       = flag.String("wal", "", "directory for a file-backed wal; empty = in-memory log")
		segmentBytes = flag.Int64("segment-bytes", 64<<20, "wal segment rotation threshold")

		localLimit  = flag.Int64("local-limit", 128<<20, "per-cache hard limit (bytes)")
		globalLimit = flag.Int64("global-limit", 1<<30, "process-wide hard limit (bytes)")

		readers  = flag.Int("readers", 2*runtime.GOMAXPROCS(0), "reader goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		opBytes  = flag.Int("op-bytes", 1024, "payload size per op")
		readMax  = flag.Int64("read-max-bytes", 64<<10, "max_bytes per ReadOps call")
		pinLag   = flag.Uint64("pin-lag", 4096, "how far the pin point trails the tail")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "logcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build the log and the cache ----
	var (
		durableLog wal.Log
		fileWAL    *wal.WAL
	)
	if *walDir != "" {
		w, err := wal.Open(*walDir, wal.Options{SegmentBytes: *segmentBytes})
		if err != nil {
			log.Fatalf("open wal: %v", err)
		}
		durableLog, fileWAL = w, w
	} else {
		durableLog = wal.NewMemory(wal.MemoryOptions{})
	}

	c := cache.New(cache.Options{
		Name:                 "bench",
		Log:                  durableLog,
		HardLimitBytes:       *localLimit,
		GlobalHardLimitBytes: *globalLimit,
		Metrics:              metrics,
	})
	defer func() { _ = c.Close() }()
	if err := c.Init(op.ID{Index: 0, Term: 1}); err != nil {
		log.Fatal(err)
	}

	// ---- Load generation ----
	var (
		appends, durable, rejections  uint64
		readsN, hits, incomp, missesN uint64
		tail, pin                     atomic.Uint64
	)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup

	// Single appender, per the cache's write contract.
	wg.Add(1)
	go func() {
		defer wg.Done()
		payload := make([]byte, *opBytes)
		for idx := uint64(1); ctx.Err() == nil; {
			err := c.Append(op.New(idx, 1, payload), func(err error) {
				if err == nil {
					atomic.AddUint64(&durable, 1)
				}
			})
			switch err {
			case nil:
				atomic.AddUint64(&appends, 1)
				tail.Store(idx)
				idx++
			case cache.ErrResourceExhausted:
				// Backpressure: wait for the pinner to free room.
				atomic.AddUint64(&rejections, 1)
				time.Sleep(time.Millisecond)
			default:
				log.Fatalf("append: %v", err)
			}
		}
	}()

	// Pin advancer: trails the tail by -pin-lag.
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if t := tail.Load(); t > *pinLag {
					p := t - *pinLag
					pin.Store(p)
					c.SetPinnedOp(p)
				}
			}
		}
	}()

	// Readers: random positions in the pinned window.
	wg.Add(*readers)
	for r := 0; r < *readers; r++ {
		go func(id int) {
			defer wg.Done()
			localR := rand.New(rand.NewSource(*seed + int64(id)*9973))
			for ctx.Err() == nil {
				lo, hi := pin.Load(), tail.Load()
				if hi == 0 {
					continue
				}
				after := lo
				if hi > lo {
					after = lo + uint64(localR.Int63n(int64(hi-lo)))
				}
				atomic.AddUint64(&readsN, 1)
				switch _, err := c.ReadOps(after, *readMax); err {
				case nil:
					atomic.AddUint64(&hits, 1)
				case cache.ErrIncomplete:
					atomic.AddUint64(&incomp, 1)
				case cache.ErrNotFound:
					atomic.AddUint64(&missesN, 1)
				default:
					log.Fatalf("read: %v", err)
				}
			}
		}(r)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	appendsV := atomic.LoadUint64(&appends)
	readsV := atomic.LoadUint64(&readsN)
	fmt.Printf("readers=%d op-bytes=%d pin-lag=%d dur=%v seed=%d\n",
		*readers, *opBytes, *pinLag, elapsed, *seed)
	fmt.Printf("appends=%d (%.0f ops/s)  durable=%d  rejections=%d\n",
		appendsV, float64(appendsV)/elapsed.Seconds(), atomic.LoadUint64(&durable),
		atomic.LoadUint64(&rejections))
	fmt.Printf("reads=%d (%.0f ops/s)  hits=%d  incomplete=%d  notfound=%d\n",
		readsV, float64(readsV)/elapsed.Seconds(), atomic.LoadUint64(&hits),
		atomic.LoadUint64(&incomp), atomic.LoadUint64(&missesN))
	fmt.Println(c.StatsString())
	if fileWAL != nil {
		s := fileWAL.Stats()
		fmt.Printf("wal: durable=%d segments=%d appended=%d ops/%d bytes sync-mean=%.2fms\n",
			s.LastDurableIndex, s.Segments, s.AppendedOps, s.AppendedBytes, s.SyncMeanMillis)
	}
}
