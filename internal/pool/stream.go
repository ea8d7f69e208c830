package pool

import "github.com/ocx/modelrun/internal/worker"

// DispatchStream is the streaming counterpart to Dispatch: it selects and
// sends to a worker the same way, then returns a channel the caller drains
// at its own pace. The circuit breaker is updated once, when the terminal
// message arrives, rather than per-chunk.
func DispatchStream[Req any, Chunk any](p *Pool, key string, req Req, bufSize int, wrap func(*worker.StreamEnvelope[Req, Chunk]) worker.Op) (<-chan worker.StreamResult[Chunk], error) {
	p.mu.RLock()
	down := p.shuttingDown
	p.mu.RUnlock()
	if down {
		return nil, ErrShuttingDown
	}

	brk := p.brk.Get(key)
	if err := brk.Allow(); err != nil {
		return nil, err
	}

	workers := p.aliveWorkers(key)
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	env := worker.NewStreamEnvelope[Req, Chunk](req, bufSize)
	op := wrap(env)

	candidate := selectWorker(workers)
	if candidate == nil {
		brk.RecordFailure()
		return nil, ErrSendBackpressure
	}
	candidate.IncPending()
	if !candidate.TrySend(op) {
		candidate.DecPending()
		brk.RecordFailure()
		return nil, ErrSendBackpressure
	}

	out := make(chan worker.StreamResult[Chunk], bufSize)
	go func() {
		defer close(out)
		defer candidate.DecPending()
		for msg := range env.Stream {
			if msg.Done {
				if msg.Err != nil {
					brk.RecordFailure()
				} else {
					brk.RecordSuccess()
				}
			}
			out <- msg
		}
	}()
	return out, nil
}
