package pool

import (
	"fmt"
	"log/slog"
	"time"
)

// worker is a single pool worker. It consumes items from the shared feed
// channel until the channel is closed and drained.
type worker struct {
	// the worker id
	id string

	// channel from which the worker consumes work
	feed <-chan item

	log     *slog.Logger
	metrics *Metrics
}

func newWorker(id string, feed <-chan item, log *slog.Logger, metrics *Metrics) *worker {
	return &worker{
		id:      id,
		feed:    feed,
		log:     log,
		metrics: metrics,
	}
}

func (w *worker) run() {
	w.log.Debug(fmt.Sprintf("starting worker %s", w.id))

	defer w.log.Debug(fmt.Sprintf("worker %s has been stopped", w.id))

	for it := range w.feed {
		start := time.Now()
		err := execute(it.task)
		if w.metrics != nil {
			w.metrics.TaskLatency.Observe(time.Since(start).Seconds())
		}

		if err != nil {
			w.log.Error(fmt.Sprintf("worker %s failed to execute task: %s", w.id, err.Error()))
			it.task.OnFailure(err)
			if w.metrics != nil {
				w.metrics.TasksFailed.Inc()
			}
		} else if w.metrics != nil {
			w.metrics.TasksCompleted.Inc()
		}

		it.handle.taskDone(err)
	}
}

// execute runs a task, converting a panic into an error so one bad kernel
// cannot take a worker down with it.
func execute(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.Execute()
}
