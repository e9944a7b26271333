package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quarrylabs/quarry/pkg/models"
)

const workerEnv = "QUARRY_WORKER_PROCESS"

// TestMain doubles as the worker executable: when re-executed with the
// marker env set, the test binary runs the worker loop instead of the tests.
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		r := NewRegistry()
		r.Register("echo", func(ctx context.Context, args json.RawMessage) (any, error) {
			var s string
			if err := json.Unmarshal(args, &s); err != nil {
				return nil, err
			}
			return s, nil
		})
		r.Register("sleep", func(ctx context.Context, args json.RawMessage) (any, error) {
			var ms int
			if err := json.Unmarshal(args, &ms); err != nil {
				return nil, err
			}
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return ms, nil
		})
		r.Register("fail", func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("task blew up")
		})
		r.Register("exit", func(ctx context.Context, args json.RawMessage) (any, error) {
			os.Exit(3)
			return nil, nil
		})
		if err := Run(r, os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func startTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := Start(size, Options{
		Command: []string{os.Args[0]},
		Env:     []string{workerEnv + "=1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

func TestSubmitRoundTrip(t *testing.T) {
	p := startTestPool(t, 1)

	resp, err := p.Submit("echo", "hello", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != "" || resp.Error != "" {
		t.Fatalf("unexpected task error: %+v", resp)
	}
	if resp.ID == "" {
		t.Error("response should carry the task id")
	}

	var got string
	if err := json.Unmarshal(resp.Result, &got); err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("expected echo of %q, got %q", "hello", got)
	}
}

func TestUnknownTask(t *testing.T) {
	p := startTestPool(t, 1)

	resp, err := p.Submit("no-such-task", nil, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != models.ErrTypeExecution {
		t.Errorf("expected execution error type, got %q", resp.ErrorType)
	}
	if !strings.Contains(resp.Error, "unknown task") {
		t.Errorf("unexpected error message: %q", resp.Error)
	}
}

func TestTaskErrorReported(t *testing.T) {
	p := startTestPool(t, 1)

	resp, err := p.Submit("fail", nil, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != models.ErrTypeExecution {
		t.Errorf("expected execution error type, got %q", resp.ErrorType)
	}
	if !strings.Contains(resp.Error, "task blew up") {
		t.Errorf("unexpected error message: %q", resp.Error)
	}

	// The worker survives a failed task and stays usable.
	resp, err = p.Submit("echo", "still alive", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != "" {
		t.Errorf("worker should remain healthy after a task error: %+v", resp)
	}
}

func TestTimeoutKillsWorkerAndHeals(t *testing.T) {
	p := startTestPool(t, 1)

	resp, err := p.Submit("sleep", 10_000, 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != models.ErrTypeTimeout {
		t.Fatalf("expected timeout error type, got %+v", resp)
	}
	if resp.Error == "" {
		t.Error("timeout response should describe the deadline")
	}

	// The stuck worker was replaced; the pool keeps serving.
	resp, err = p.Submit("echo", "after timeout", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != "" {
		t.Errorf("pool should heal after a timeout: %+v", resp)
	}
}

func TestWorkerCrashRecovered(t *testing.T) {
	p := startTestPool(t, 1)

	resp, err := p.Submit("exit", nil, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != models.ErrTypeExecution {
		t.Errorf("expected execution error for a dead worker, got %+v", resp)
	}

	resp, err = p.Submit("echo", "after crash", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ErrorType != "" {
		t.Errorf("pool should heal after a crash: %+v", resp)
	}
}

func TestConcurrentSubmits(t *testing.T) {
	p := startTestPool(t, 3)

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := fmt.Sprintf("msg-%d", i)
			resp, err := p.Submit("echo", msg, 5*time.Second)
			if err != nil {
				errs <- err
				return
			}
			var got string
			if err := json.Unmarshal(resp.Result, &got); err != nil {
				errs <- err
				return
			}
			if got != msg {
				errs <- fmt.Errorf("got %q, want %q", got, msg)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := startTestPool(t, 1)
	p.Shutdown()

	if _, err := p.Submit("echo", "late", time.Second); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}

	// Shutdown is idempotent.
	p.Shutdown()
}
