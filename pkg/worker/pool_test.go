package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/threads/pkg/logger"
	"github.com/papercomputeco/threads/pkg/worker"
)

var _ = Describe("Worker Pool", func() {
	var wp *worker.Pool

	newPool := func(c *worker.Config) *worker.Pool {
		c.Logger = logger.Nop()
		p, err := worker.NewPool(c)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	AfterEach(func() {
		if wp != nil {
			wp.Close()
		}
	})

	Describe("Enqueue", func() {
		It("runs queued jobs", func() {
			wp = newPool(&worker.Config{NumWorkers: 2})

			var ran atomic.Int32
			for range 10 {
				Expect(wp.Enqueue(worker.Job{Name: "count", Run: func(context.Context) error {
					ran.Add(1)
					return nil
				}})).To(BeTrue())
			}

			wp.Wait()
			Expect(ran.Load()).To(Equal(int32(10)))
		})

		It("drops jobs when the queue is full", func() {
			wp = newPool(&worker.Config{NumWorkers: 1, QueueSize: 1})

			release := make(chan struct{})
			started := make(chan struct{})
			Expect(wp.Enqueue(worker.Job{Name: "block", Run: func(context.Context) error {
				close(started)
				<-release
				return nil
			}})).To(BeTrue())
			Eventually(started).Should(BeClosed())

			Expect(wp.Enqueue(worker.Job{Name: "queued", Run: func(context.Context) error { return nil }})).To(BeTrue())
			Expect(wp.Enqueue(worker.Job{Name: "dropped", Run: func(context.Context) error { return nil }})).To(BeFalse())

			close(release)
			wp.Wait()
		})

		It("rejects jobs after Close", func() {
			wp = newPool(&worker.Config{})
			wp.Close()

			Expect(wp.Enqueue(worker.Job{Name: "late", Run: func(context.Context) error { return nil }})).To(BeFalse())
		})
	})

	Describe("failure isolation", func() {
		It("keeps working after a job errors or panics", func() {
			wp = newPool(&worker.Config{NumWorkers: 1})

			var ran atomic.Bool
			wp.Enqueue(worker.Job{Name: "err", Run: func(context.Context) error { return errors.New("boom") }})
			wp.Enqueue(worker.Job{Name: "panic", Run: func(context.Context) error { panic("boom") }})
			wp.Enqueue(worker.Job{Name: "ok", Run: func(context.Context) error {
				ran.Store(true)
				return nil
			}})

			wp.Wait()
			Expect(ran.Load()).To(BeTrue())
		})

		It("bounds jobs with JobTimeout", func() {
			wp = newPool(&worker.Config{NumWorkers: 1, JobTimeout: 20 * time.Millisecond})

			var ctxErr atomic.Value
			wp.Enqueue(worker.Job{Name: "slow", Run: func(ctx context.Context) error {
				<-ctx.Done()
				ctxErr.Store(ctx.Err())
				return ctx.Err()
			}})

			wp.Wait()
			Expect(ctxErr.Load()).To(MatchError(context.DeadlineExceeded))
		})
	})

	Describe("Close", func() {
		It("drains queued jobs", func() {
			wp = newPool(&worker.Config{NumWorkers: 1})

			var ran atomic.Int32
			for range 5 {
				wp.Enqueue(worker.Job{Name: "count", Run: func(context.Context) error {
					ran.Add(1)
					return nil
				}})
			}

			wp.Close()
			Expect(ran.Load()).To(Equal(int32(5)))
		})
	})
})
