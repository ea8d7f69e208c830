package pool

import (
	"math/rand/v2"

	"github.com/ocx/modelrun/internal/worker"
)

// selectWorker picks a candidate worker using power-of-two-choices: sample
// two distinct workers at random and take the one with fewer requests in
// flight, breaking ties toward whichever has sat idle longer. With a
// single candidate it is returned outright; with none, nil.
func selectWorker(workers []*worker.Handle) *worker.Handle {
	switch len(workers) {
	case 0:
		return nil
	case 1:
		return workers[0]
	}

	i := rand.IntN(len(workers))
	j := rand.IntN(len(workers) - 1)
	if j >= i {
		j++
	}
	a, b := workers[i], workers[j]
	return betterOf(a, b)
}

func betterOf(a, b *worker.Handle) *worker.Handle {
	if pa, pb := a.Pending(), b.Pending(); pa != pb {
		if pa < pb {
			return a
		}
		return b
	}
	if a.LastUsed().Before(b.LastUsed()) {
		return a
	}
	return b
}
