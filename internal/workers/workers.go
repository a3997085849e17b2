// Package workers provides the queue that feeds submitted jobs to the
// ffmpeg runner.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/config"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/metrics"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// DefaultQueueSize applies when the configured queue size is not positive.
const DefaultQueueSize = 16

// Task represents a unit of work for the worker pool.  The context passed
// to Execute is cancelled when the pool stops.
type Task struct {
	ID      string
	Execute func(ctx context.Context) error
}

// Pool manages a pool of worker goroutines.
type Pool struct {
	tasks      chan Task
	wg         sync.WaitGroup
	quit       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	numWorkers int
	stopOnce   sync.Once
}

// NewPool creates a new worker pool.
func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		tasks:      make(chan Task, queueSize),
		quit:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		numWorkers: numWorkers,
	}
}

// NewJobQueue creates the single-worker pool used for ffmpeg jobs.  The
// runner accepts one command at a time, so one worker drains the queue.
func NewJobQueue(cfg *config.WorkersConfig) *Pool {
	p := NewPool(1, cfg.QueueSize)
	log.Infof("Job queue initialized: queue size %d", cap(p.tasks))
	return p
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Infof("Worker pool started with %d workers", p.numWorkers)
}

// Stop signals all workers to stop, cancels the context of the running
// tasks and waits for them.  Queued tasks are discarded.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		p.cancel()
		p.wg.Wait()
		metrics.JobsQueued.Set(0)
		log.Info("Worker pool stopped")
	})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.tasks:
			metrics.JobsQueued.Set(float64(len(p.tasks)))
			// select picks randomly when quit and tasks are both ready.
			select {
			case <-p.quit:
				log.Debugf("Worker %d: task %s discarded on stop", id, task.ID)
				return
			default:
			}
			start := time.Now()
			if err := task.Execute(p.ctx); err != nil {
				log.Errorf("Worker %d: task %s failed: %v", id, task.ID, err)
				continue
			}
			log.Debugf("Worker %d: task %s done in %s", id, task.ID, time.Since(start))
		}
	}
}

// Submit adds a task to the pool.  It returns false when the queue is
// full or the pool is stopped.
func (p *Pool) Submit(task Task) bool {
	select {
	case <-p.quit:
		return false
	default:
	}
	select {
	case p.tasks <- task:
		metrics.JobsQueued.Set(float64(len(p.tasks)))
		return true
	default:
		metrics.JobsDroppedTotal.Inc()
		log.Warnf("Worker pool queue full, task %s dropped", task.ID)
		return false
	}
}

// Queued returns the number of tasks waiting.
func (p *Pool) Queued() int {
	return len(p.tasks)
}
