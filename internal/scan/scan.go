// Package scan fans probes out over a port range.
//
// Scanner.Scan is the coordinator for one transport mode: one task per
// port, at most Workers in flight, results collected in completion
// order.  Scanner.Run repeats it for every mode.  Neither returns an
// error: expected network failures are negative results, and anomalous
// task failures are logged and the port is left out.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"pscan/config"
	ncerr "pscan/internal/errors"
	"pscan/internal/metrics"
	"pscan/internal/probe"
	"pscan/util"
)

//go:generate mockgen -source=scan.go -destination=mocks/mock_prober.go -package=mocks

// Prober checks one address.  *probe.Prober satisfies it.
type Prober interface {
	Check(ctx context.Context, mode probe.Mode, addr probe.Address) (probe.Status, error)
}

// Request is a half-open port range on one host.
type Request struct {
	Host      string
	StartPort int
	EndPort   int // exclusive
}

// Len returns the number of ports in the range.  An inverted range is
// empty.
func (r Request) Len() int {
	if r.EndPort <= r.StartPort {
		return 0
	}
	return r.EndPort - r.StartPort
}

// Ports enumerates [StartPort, EndPort) in ascending order.
func (r Request) Ports() []int {
	ports := make([]int, 0, r.Len())
	for p := r.StartPort; p < r.EndPort; p++ {
		ports = append(ports, p)
	}
	return ports
}

// Scanner runs probes with bounded concurrency.
type Scanner struct {
	Prober   Prober
	Workers  int  // per mode; 0 = config.DefaultWorkers
	Parallel bool // Run scans both modes at once

	Logger  *util.Logger       // nil = errors only, to stderr
	Metrics *metrics.Collector // nil = no metrics

	// OnResult, if set, is called once for every result that makes it
	// into the output.  It may be called from several goroutines.
	OnResult func(probe.Result)
}

// Run scans [start, end) on host once per mode, in probe.Modes order,
// and returns one group per mode.
func (s *Scanner) Run(ctx context.Context, host string, start, end int) [][]probe.Result {
	modes := probe.Modes()
	groups := make([][]probe.Result, len(modes))

	if !s.Parallel {
		for i, mode := range modes {
			groups[i] = s.Scan(ctx, mode, host, start, end)
		}
		return groups
	}

	// Each Scan owns its own limiter, so running modes side by side
	// keeps the per-mode bound.
	var wg sync.WaitGroup
	for i, mode := range modes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			groups[i] = s.Scan(ctx, mode, host, start, end)
		}()
	}
	wg.Wait()
	return groups
}

// Scan probes every port in [start, end) over mode.  Results are in
// completion order.  The output is shorter than the range when a task
// fails abnormally, or when ctx is cancelled: no new tasks start after
// that and in-flight results are discarded.
func (s *Scanner) Scan(ctx context.Context, mode probe.Mode, host string, start, end int) []probe.Result {
	req := Request{Host: host, StartPort: start, EndPort: end}
	results := make([]probe.Result, 0, req.Len())
	if req.Len() == 0 {
		return results
	}

	log := s.logger().With("scan/" + mode.String())
	workers := s.workers()
	log.Verbose("probing %s ports %d-%d with %d workers", host, start, end-1, workers)

	sem := semaphore.NewWeighted(int64(workers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, port := range req.Ports() {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Verbose("stopped scheduling at port %d: %v", port, err)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			r, err := s.check(ctx, mode, host, port)
			if err != nil {
				log.Error("%d generated an exception: %v", port, err)
				s.Metrics.RecordAnomaly(mode.String(), err.Error())
				return
			}
			if ctx.Err() != nil {
				return
			}
			log.Debug("%d %s", port, r.Status)

			mu.Lock()
			results = append(results, r)
			mu.Unlock()

			if s.OnResult != nil {
				s.OnResult(r)
			}
		}()
	}

	wg.Wait()
	log.Verbose("%d of %d ports done", len(results), req.Len())
	return results
}

// check runs one probe task, turning a panic into an anomaly.
func (s *Scanner) check(ctx context.Context, mode probe.Mode, host string, port int) (r probe.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = ncerr.WrapProbe(mode.String(), port, fmt.Errorf("panic: %v", v))
		}
	}()

	s.Metrics.ProbeStarted()
	defer s.Metrics.ProbeDone()

	begin := time.Now()
	st, err := s.Prober.Check(ctx, mode, probe.Address{Host: host, Port: port})
	if err != nil {
		return probe.Result{}, err
	}
	r = probe.NewResult(mode, port, st)
	s.Metrics.RecordResult(mode.String(), st.String(), r.Reachable, time.Since(begin))
	return r, nil
}

func (s *Scanner) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return config.DefaultWorkers
}

func (s *Scanner) logger() *util.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return util.NewLogger(0)
}
