// Package testing provides shared test helpers.
//
// t.Fatal and t.FailNow must not be called from spawned goroutines:
// they call runtime.Goexit, which terminates the calling goroutine
// instead of the test. Helpers here collect goroutine errors and report
// them from the test goroutine.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// GoroutineTest collects errors from test goroutines.
//
// Usage:
//
//	gt := testing.NewGoroutineTest(t)
//	defer gt.Wait()
//
//	gt.Go(func() error {
//	    _, err := mgr.RunCleanup(ctx, now)
//	    return err
//	})
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a helper with a cancellable context.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a goroutine. A returned error fails the test when Wait
// is called.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("error channel full, dropping: %v", err)
			}
		}
	}()
}

// GoWithContext runs fn with the helper's context.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.Go(func() error { return fn(gt.ctx) })
}

// Wait blocks until every goroutine finished and fails the test if any
// returned an error. Call it via defer right after NewGoroutineTest.
func (gt *GoroutineTest) Wait() {
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		gt.t.Errorf("goroutine test failed with %d error(s):", len(errs))
		for i, err := range errs {
			gt.t.Errorf("  [%d] %v", i+1, err)
		}
		gt.t.FailNow()
	}
}

// Context returns the helper's context.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Cancel signals goroutines to stop.
func (gt *GoroutineTest) Cancel() {
	gt.cancel()
}

// WithTimeout runs fn and reports a failure if it does not return in
// time.
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Eventually polls condition until it holds or the timeout expires.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
