package request

import (
	"net"
	"time"

	"github.com/nbcluster/nbcluster/internal/logger"
)

// Transport sends an already-encoded datagram either to a specific
// unicast address (WINS) or to the configured subnet broadcast address.
type Transport interface {
	SendUnicast(buf []byte, addr *net.UDPAddr) error
	SendBroadcast(buf []byte) error
}

// PacketBuilder encodes the wire datagram for a request.
type PacketBuilder func(r *Request) []byte

// Engine is the dedicated worker that drains the request Queue,
// choosing WINS unicast over broadcast when a primary WINS address is
// configured, retrying at the request's interval until it succeeds,
// fails, or exhausts its retry budget.
type Engine struct {
	Queue     *Queue
	Transport Transport
	Build     PacketBuilder
	WINSAddr  *net.UDPAddr
	OnSuccess func(*Request)
	OnFailed  func(*Request)
	OnIOError func(*Request)

	stop chan struct{}
}

// NewEngine builds a request engine bound to q.
func NewEngine(q *Queue, transport Transport, build PacketBuilder, winsAddr *net.UDPAddr) *Engine {
	return &Engine{
		Queue:     q,
		Transport: transport,
		Build:     build,
		WINSAddr:  winsAddr,
		stop:      make(chan struct{}),
	}
}

// Run drains the queue until Stop is called. It is meant to run on
// its own goroutine as the queue's single dedicated worker.
func (e *Engine) Run() {
	for {
		r, ok := e.Queue.WaitHead()
		if !ok {
			return
		}
		e.process(r)
	}
}

// Stop unblocks Run.
func (e *Engine) Stop() {
	close(e.stop)
	e.Queue.Close()
}

func (e *Engine) process(r *Request) {
	usingWINS := e.WINSAddr != nil
	if r.RetryInterval == 0 {
		r.RetryInterval = r.intervalFor(usingWINS)
	}
	if r.MaxRetries == 0 {
		if usingWINS {
			r.MaxRetries = DefaultWINSRetries
		} else {
			r.MaxRetries = DefaultBroadcastRetries
		}
	}

	for {
		select {
		case <-r.Done:
			e.Queue.Remove(r)
			return
		default:
		}

		buf := e.Build(r)
		var err error
		if usingWINS {
			err = e.Transport.SendUnicast(buf, e.WINSAddr)
		} else {
			err = e.Transport.SendBroadcast(buf)
		}
		if err != nil {
			logger.Warn("netbios request send failed", "kind", r.Kind.String(), "name", r.Name.Name, "error", err)
			r.Error = true
			e.finish(r, false)
			if e.OnIOError != nil {
				e.OnIOError(r)
			}
			return
		}
		r.RetryCount++

		select {
		case <-r.Done:
			e.Queue.Remove(r)
			return
		case <-time.After(r.RetryInterval):
		case <-e.stop:
			return
		}

		if r.RetryCount >= r.MaxRetries {
			// Retries exhausted: broadcast-only registrations assume
			// success (RFC1001 B-node behavior); WINS requires an
			// explicit positive reply, so exhaustion is failure.
			e.finish(r, !usingWINS)
			return
		}
	}
}

func (e *Engine) finish(r *Request, positive bool) {
	won := r.complete(positive)
	e.Queue.Remove(r)
	if !won {
		return
	}
	if positive && e.OnSuccess != nil {
		e.OnSuccess(r)
	}
	if !positive && e.OnFailed != nil {
		e.OnFailed(r)
	}
}

// Complete is called by the name service node when a response datagram
// matches a pending request's transaction id.
func (e *Engine) Complete(r *Request, positive bool) {
	e.finish(r, positive)
}
