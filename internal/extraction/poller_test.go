package extraction

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// scriptedBackend replays a fixed sequence of statuses
type scriptedBackend struct {
	mu        sync.Mutex
	statuses  []*OperationStatus
	statusErr error
	calls     int
	released  []string
}

func (b *scriptedBackend) Submit(ctx context.Context, data []byte, contentType string) (*Operation, error) {
	return &Operation{ID: "op-1"}, nil
}

func (b *scriptedBackend) Status(ctx context.Context, op *Operation) (*OperationStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.statusErr != nil {
		return nil, b.statusErr
	}
	if len(b.statuses) == 0 {
		return &OperationStatus{State: StateRunning}, nil
	}
	status := b.statuses[0]
	if len(b.statuses) > 1 {
		b.statuses = b.statuses[1:]
	}
	return status, nil
}

func (b *scriptedBackend) Close() error {
	return nil
}

func (b *scriptedBackend) Release(op *Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, op.ID)
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

var _ = Describe("Poller", func() {
	var (
		backend *scriptedBackend
		poller  *Poller
		ctx     context.Context
		op      *Operation
		result  *AnalysisResult
		err     error
	)

	BeforeEach(func() {
		backend = &scriptedBackend{}
		poller = NewPoller(backend, 5*time.Millisecond, time.Second)
		ctx = context.Background()
		op = &Operation{ID: "op-1"}
	})

	JustBeforeEach(func() {
		result, err = poller.Await(ctx, op)
	})

	When("the operation succeeds after running", func() {
		BeforeEach(func() {
			backend.statuses = []*OperationStatus{
				{State: StateNotStarted},
				{State: StateRunning},
				{State: StateSucceeded, Result: &AnalysisResult{ModelID: "prebuilt-invoice"}},
			}
		})

		It("should return the result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.ModelID).To(Equal("prebuilt-invoice"))
		})

		It("should poll until the terminal state", func() {
			Expect(backend.callCount()).To(Equal(3))
		})

		It("should release the operation", func() {
			Expect(backend.released).To(Equal([]string{"op-1"}))
		})
	})

	When("the operation succeeds without a result", func() {
		BeforeEach(func() {
			backend.statuses = []*OperationStatus{{State: StateSucceeded}}
		})

		It("should return an empty result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Documents).To(BeEmpty())
		})
	})

	When("the operation fails", func() {
		BeforeEach(func() {
			backend.statuses = []*OperationStatus{
				{State: StateRunning},
				{State: StateFailed, Error: &OperationError{Code: "InternalServerError", Message: "boom"}},
			}
		})

		It("should return an OperationFailedError with the service details", func() {
			var failed *OperationFailedError
			Expect(errors.As(err, &failed)).To(BeTrue())
			Expect(failed.Code).To(Equal("InternalServerError"))
			Expect(failed.Message).To(Equal("boom"))
		})

		It("should release the operation", func() {
			Expect(backend.released).To(ConsistOf("op-1"))
		})
	})

	When("the operation fails without details", func() {
		BeforeEach(func() {
			backend.statuses = []*OperationStatus{{State: StateFailed}}
		})

		It("should still return an OperationFailedError", func() {
			var failed *OperationFailedError
			Expect(errors.As(err, &failed)).To(BeTrue())
		})
	})

	When("the operation never finishes", func() {
		BeforeEach(func() {
			poller = NewPoller(backend, 5*time.Millisecond, 40*time.Millisecond)
		})

		It("should return ErrPollTimeout", func() {
			Expect(err).To(MatchError(ErrPollTimeout))
		})

		It("should release the operation", func() {
			Expect(backend.released).To(ConsistOf("op-1"))
		})
	})

	When("the caller cancels", func() {
		BeforeEach(func() {
			var cancel context.CancelFunc
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
		})

		It("should return the context error rather than a timeout", func() {
			Expect(err).To(MatchError(context.Canceled))
			Expect(err).NotTo(MatchError(ErrPollTimeout))
		})

		It("should release the operation", func() {
			Expect(backend.released).To(ConsistOf("op-1"))
		})
	})

	When("a status call fails", func() {
		BeforeEach(func() {
			backend.statusErr = &TransportError{Op: "fetching operation status", Err: errors.New("connection reset")}
		})

		It("should return the error without retrying", func() {
			var transportErr *TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(backend.callCount()).To(Equal(1))
		})
	})
})

var _ = Describe("NewPoller", func() {
	It("should fall back to defaults for non-positive durations", func() {
		p := NewPoller(&scriptedBackend{}, 0, -1)
		Expect(p.interval).To(Equal(DefaultPollInterval))
		Expect(p.maxWait).To(Equal(DefaultMaxWait))
	})
})
