package mqtt

import (
	"sync"
)

// job is one inbound message waiting for its handler.
type job struct {
	handler MessageHandler
	topic   string
	payload []byte
}

// dispatcher runs message handlers on a fixed set of workers fed by a
// bounded queue. submit never blocks: when the queue is full the message
// is rejected and the caller logs the drop.
type dispatcher struct {
	jobs   chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	logger func() Logger
}

func newDispatcher(workers, queueSize int, logger func() Logger) *dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	d := &dispatcher{
		jobs:   make(chan job, queueSize),
		logger: logger,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// submit queues a job. It returns false if the queue is full or the
// dispatcher has stopped.
func (d *dispatcher) submit(j job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- j:
		return true
	default:
		return false
	}
}

// stop drains queued jobs and waits for the workers to exit.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *dispatcher) work() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.run(j)
	}
}

// run calls the handler, logging its error or a recovered panic.
func (d *dispatcher) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger().Error("MQTT handler panic recovered",
				"topic", j.topic,
				"panic", r,
			)
		}
	}()

	if err := j.handler(j.topic, j.payload); err != nil {
		d.logger().Warn("MQTT handler returned error",
			"topic", j.topic,
			"error", err,
		)
	}
}
