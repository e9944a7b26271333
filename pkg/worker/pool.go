package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/quarrylabs/quarry/pkg/models"
)

// DefaultPoolSize is the number of worker processes when unconfigured.
const DefaultPoolSize = 4

var (
	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrSpawnWorker marks a failure to create a worker process. Failing to
	// spawn a replacement is an operational failure of the pool, not a
	// per-query error.
	ErrSpawnWorker = errors.New("failed to spawn worker process")
)

// shutdownGrace is how long Shutdown waits for a worker to exit after its
// stdin closes before killing it.
const shutdownGrace = 5 * time.Second

// Options configure the pool.
type Options struct {
	// Command is the argv used to start worker processes. Defaults to the
	// current binary with a "worker" argument; tests override it.
	Command []string
	// Env entries appended to the inherited environment.
	Env []string
}

// proc is one worker process with its pipe endpoints.
type proc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *json.Encoder
	dec   *json.Decoder
}

// Pool dispatches tasks to a fixed set of long-lived worker processes. A
// task exceeding its deadline gets its worker killed and replaced; the rest
// of the pool is unaffected.
type Pool struct {
	cmdline []string
	env     []string
	size    int

	mu     sync.Mutex
	procs  map[*proc]struct{}
	idle   chan *proc
	closed bool
}

// Start spawns size worker processes and returns the pool handle. A spawn
// failure at startup is fatal.
func Start(size int, opts Options) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	cmdline := opts.Command
	if len(cmdline) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpawnWorker, err)
		}
		cmdline = []string{exe, "worker"}
	}

	p := &Pool{
		cmdline: cmdline,
		env:     opts.Env,
		size:    size,
		procs:   make(map[*proc]struct{}, size),
		idle:    make(chan *proc, size),
	}

	for i := 0; i < size; i++ {
		w, err := p.spawn()
		if err != nil {
			p.Shutdown()
			return nil, fmt.Errorf("%w: %v", ErrSpawnWorker, err)
		}
		p.idle <- w
	}

	log.Infof("[Pool] Started %d worker processes", size)
	return p, nil
}

// spawn starts one worker process and tracks it.
func (p *Pool) spawn() (*proc, error) {
	cmd := exec.Command(p.cmdline[0], p.cmdline[1:]...)
	cmd.Env = append(os.Environ(), p.env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	w := &proc{
		cmd:   cmd,
		stdin: stdin,
		enc:   json.NewEncoder(stdin),
		dec:   json.NewDecoder(stdout),
	}

	p.mu.Lock()
	p.procs[w] = struct{}{}
	p.mu.Unlock()
	return w, nil
}

// Submit dispatches one task to an available worker and blocks the calling
// goroutine until the worker responds, fails, or the deadline passes. On
// timeout the worker is forcibly terminated, a replacement restores the pool
// size, and the returned response is tagged with the timeout error type.
func (p *Pool) Submit(task string, args any, timeout time.Duration) (*Response, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode task args: %w", err)
	}

	w, ok := <-p.idle
	if !ok {
		return nil, ErrPoolClosed
	}

	req := Request{ID: uuid.NewString(), Task: task, Args: raw}
	if err := w.enc.Encode(&req); err != nil {
		return p.replaceFailed(w, task, err)
	}

	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)
	go func() {
		var resp Response
		if err := w.dec.Decode(&resp); err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		p.release(w)
		return &resp, nil

	case err := <-errCh:
		// Worker died mid-task.
		return p.replaceFailed(w, task, err)

	case <-timer.C:
		log.Warnf("[Pool] Task %s (%s) exceeded %s deadline, killing worker", req.ID, task, timeout)
		p.discard(w)
		if err := p.replace(); err != nil {
			return nil, err
		}
		return &Response{
			ID:        req.ID,
			ErrorType: models.ErrTypeTimeout,
			Error:     fmt.Sprintf("query exceeded the %s execution deadline", timeout),
		}, nil
	}
}

// replaceFailed discards a broken worker, restores pool size, and reports the
// failure as an execution-tagged response.
func (p *Pool) replaceFailed(w *proc, task string, cause error) (*Response, error) {
	log.Warnf("[Pool] Worker failed during %s task: %v", task, cause)
	p.discard(w)
	if err := p.replace(); err != nil {
		return nil, err
	}
	return &Response{
		ErrorType: models.ErrTypeExecution,
		Error:     fmt.Sprintf("worker process failed: %v", cause),
	}, nil
}

// discard kills a worker and removes it from tracking. A worker already
// handed to Shutdown is left alone.
func (p *Pool) discard(w *proc) {
	p.mu.Lock()
	_, tracked := p.procs[w]
	delete(p.procs, w)
	p.mu.Unlock()
	if !tracked {
		return
	}

	w.stdin.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
}

// replace spawns a fresh worker to restore pool size. A closed pool needs no
// replacement.
func (p *Pool) replace() error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}

	w, err := p.spawn()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnWorker, err)
	}
	p.release(w)
	return nil
}

// release returns a healthy worker to the idle set.
func (p *Pool) release(w *proc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		// Shutdown owns remaining workers.
		return
	}
	p.idle <- w
}

// Shutdown terminates all workers and reaps them, waiting for in-flight
// tasks to finish draining before force-killing stragglers. Submit fails
// with ErrPoolClosed afterwards.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	procs := make([]*proc, 0, len(p.procs))
	for w := range p.procs {
		procs = append(procs, w)
	}
	p.procs = make(map[*proc]struct{})
	close(p.idle)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range procs {
		wg.Add(1)
		go func(w *proc) {
			defer wg.Done()
			// Closing stdin lets the worker finish its current task and
			// exit on EOF.
			w.stdin.Close()

			done := make(chan struct{})
			go func() {
				_ = w.cmd.Wait()
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(shutdownGrace):
				if w.cmd.Process != nil {
					_ = w.cmd.Process.Kill()
				}
				<-done
			}
		}(w)
	}
	wg.Wait()

	log.Infof("[Pool] Shut down %d worker processes", len(procs))
}
