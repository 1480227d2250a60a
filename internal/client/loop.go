/*
Package client
File: loop.go
Description:
    The Loop serialises everything that touches a Session. One executor
    goroutine drains a job queue; user actions are queued with Do and
    periodic work runs as named Tasks whose tickers only enqueue jobs.

    Because every job runs on the same goroutine, a collect call issued by
    one frame finishes before the next frame starts.
*/

package client

import (
	"context"
	"sync"
	"time"
)

// Names of the session tasks.
const (
	TaskTravel  = "travel-poll"
	TaskBattery = "battery-regen"
)

// Job is a unit of work executed on the loop goroutine.
type Job func(ctx context.Context) error

type queued struct {
	ctx   context.Context
	job   Job
	reply chan error // nil for task ticks
	task  string
}

// Task is a named periodic job with its own ticker goroutine.
type Task struct {
	Name   string
	Every  time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// Loop owns the executor goroutine and the running tasks.
type Loop struct {
	session *Session
	inbox   chan queued

	mu    sync.Mutex
	tasks map[string]*Task

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop starts the executor for s and lets the session schedule its own tasks.
func NewLoop(s *Session) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		session: s,
		inbox:   make(chan queued, 64),
		tasks:   make(map[string]*Task),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.tasks = l
	go l.run()
	return l
}

// Session returns the session this loop drives. Only use it inside a Job.
func (l *Loop) Session() *Session { return l.session }

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case q := <-l.inbox:
			if q.ctx.Err() != nil {
				if q.reply != nil {
					q.reply <- q.ctx.Err()
				}
				continue
			}
			err := q.job(q.ctx)
			if q.reply != nil {
				q.reply <- err
			} else if err != nil {
				l.session.ErrorLog.Printf("task %s: %v", q.task, err)
			}
		}
	}
}

// Do queues a job and waits for its result.
func (l *Loop) Do(ctx context.Context, job Job) error {
	reply := make(chan error, 1)
	select {
	case l.inbox <- queued{ctx: ctx, job: job, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrClosed
	}
}

// Start runs job every period until stopped. Starting a task that is
// already running is a no-op and reports false.
func (l *Loop) Start(name string, every time.Duration, job Job) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil || every <= 0 {
		return false
	}
	if _, running := l.tasks[name]; running {
		return false
	}

	ctx, cancel := context.WithCancel(l.ctx)
	t := &Task{Name: name, Every: every, cancel: cancel, done: make(chan struct{})}
	l.tasks[name] = t

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case l.inbox <- queued{ctx: ctx, job: job, task: name}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return true
}

// Stop cancels a task. It reports whether the task was running.
// Stop may be called from inside a job.
func (l *Loop) Stop(name string) bool {
	l.mu.Lock()
	t, ok := l.tasks[name]
	delete(l.tasks, name)
	l.mu.Unlock()
	if ok {
		t.cancel()
	}
	return ok
}

// Running reports whether a task is scheduled.
func (l *Loop) Running(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tasks[name]
	return ok
}

// StartSession launches the travel poll and battery regen tasks. Calling it
// again while they run starts nothing new.
func (l *Loop) StartSession() {
	cfg := l.session.Config()
	l.Start(TaskTravel, cfg.Travel.Poll, l.session.TravelTick)
	l.Start(TaskBattery, cfg.Battery.Tick, l.session.BatteryTick)
}

// Restart re-creates the session tasks, picking up new periods after a config reload.
func (l *Loop) Restart() {
	l.Stop(TaskTravel)
	l.Stop(TaskBattery)
	l.StartSession()
}

// Close cancels every task and stops the executor.
func (l *Loop) Close() {
	l.mu.Lock()
	tasks := make([]*Task, 0, len(l.tasks))
	for name, t := range l.tasks {
		tasks = append(tasks, t)
		delete(l.tasks, name)
	}
	l.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
		<-t.done
	}
	l.cancel()
	<-l.done
}
