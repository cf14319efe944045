package scheduler_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/engine/scheduler"
	"github.com/papercomputeco/strata/pkg/logger"
)

// countingRunner records every session it ran against.
type countingRunner struct {
	mu   sync.Mutex
	runs []string
}

// orderLog is a shared record of which engine ran, in execution order.
type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (l *orderLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *orderLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

// namedRunner appends its engine name to a shared log on every run.
type namedRunner struct {
	name string
	log  *orderLog
}

func (r *namedRunner) Run(context.Context, string) (engine.BatchResult, error) {
	r.log.record(r.name)
	return engine.BatchResult{}, nil
}

func (r *countingRunner) Run(_ context.Context, sessionID string) (engine.BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, sessionID)
	return engine.BatchResult{Processed: 1}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

var _ = Describe("Pool", func() {
	var runner *countingRunner

	newPool := func(c scheduler.Config) *scheduler.Pool {
		runner = &countingRunner{}
		pool, err := scheduler.NewPool(map[string]scheduler.Runner{"promotion": runner}, c, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		return pool
	}

	It("executes enqueued jobs", func() {
		pool := newPool(scheduler.Config{NumWorkers: 2})
		defer pool.Close()

		Expect(pool.Enqueue(scheduler.Job{Engine: "promotion", SessionID: "sess_1"})).To(BeTrue())
		Expect(pool.Enqueue(scheduler.Job{Engine: "promotion", SessionID: "sess_2"})).To(BeTrue())

		Eventually(runner.count).Should(Equal(2))
	})

	It("rejects jobs for unknown engines", func() {
		pool := newPool(scheduler.Config{})
		defer pool.Close()

		Expect(pool.Enqueue(scheduler.Job{Engine: "compaction", SessionID: "sess_1"})).To(BeFalse())
	})

	It("drains in-flight jobs on Close", func() {
		pool := newPool(scheduler.Config{NumWorkers: 1})

		for i := 0; i < 5; i++ {
			Expect(pool.Enqueue(scheduler.Job{Engine: "promotion", SessionID: "sess_1"})).To(BeTrue())
		}
		pool.Close()

		Expect(runner.count()).To(Equal(5))
	})

	It("periodically runs engines for tracked sessions", func() {
		pool := newPool(scheduler.Config{Interval: 10 * time.Millisecond})
		defer pool.Close()

		pool.Track("sess_1")

		Eventually(runner.count).Should(BeNumerically(">=", 2))
	})

	It("enqueues the engines in lifecycle order on every tick", func() {
		log := &orderLog{}
		runners := map[string]scheduler.Runner{
			"distillation":  &namedRunner{name: "distillation", log: log},
			"promotion":     &namedRunner{name: "promotion", log: log},
			"consolidation": &namedRunner{name: "consolidation", log: log},
		}

		// One worker so execution order mirrors enqueue order.
		pool, err := scheduler.NewPool(runners, scheduler.Config{
			NumWorkers: 1,
			Interval:   10 * time.Millisecond,
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		pool.Track("sess_1")

		Eventually(func() int { return len(log.snapshot()) }).Should(BeNumerically(">=", 3))
		Expect(log.snapshot()[:3]).To(Equal([]string{"promotion", "consolidation", "distillation"}))
	})
})
