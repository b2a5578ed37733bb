package server

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	heartbeatCheckInterval = 10 * time.Second
	heartbeatTimeout       = 70 * time.Second
)

// Liveness watches the host's heartbeat pings. When the host goes quiet the
// quit channel closes once and the service shuts down in an orderly way.
type Liveness struct {
	lastBeat atomic.Int64
	timeout  time.Duration
	quit     chan struct{}
	once     sync.Once
}

func NewLiveness() *Liveness {
	l := &Liveness{
		timeout: heartbeatTimeout,
		quit:    make(chan struct{}),
	}
	l.Beat()
	return l
}

func (l *Liveness) Beat() {
	l.lastBeat.Store(time.Now().UnixMilli())
}

// Quit closes when the heartbeat has been silent for longer than the
// timeout. Hand it to the server runner.
func (l *Liveness) Quit() <-chan struct{} {
	return l.quit
}

func (l *Liveness) Watch() {
	go l.watch(heartbeatCheckInterval)
}

func (l *Liveness) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.quit:
			return
		case <-ticker.C:
			silence := time.Since(time.UnixMilli(l.lastBeat.Load()))
			if silence > l.timeout {
				log.Printf("No heartbeat for %v, shutting down", silence.Round(time.Second))
				l.stop()
				return
			}
		}
	}
}

func (l *Liveness) stop() {
	l.once.Do(func() {
		close(l.quit)
	})
}
