// Package par runs a set of work items in parallel, at most once each.
package par

import (
	"sync"

	qerrors "github.com/qiniu/x/errors"
)

// Work manages a set of work items to be executed in parallel, at most once each.
// The items in the set must all be valid map keys.
type Work[T comparable] struct {
	f       func(T) error
	running int

	mu      sync.Mutex
	added   map[T]bool
	todo    []T
	wait    sync.Cond
	waiting int
	errs    qerrors.List
}

// Add adds item to the work set, if it hasn't already been added.
// It may be called from within the function passed to Do.
func (w *Work[T]) Add(item T) {
	w.mu.Lock()
	if w.added == nil {
		w.added = make(map[T]bool)
	}
	if !w.added[item] {
		w.added[item] = true
		w.todo = append(w.todo, item)
		if w.waiting > 0 {
			w.wait.Signal()
		}
	}
	w.mu.Unlock()
}

// Do runs f on every item of the work set with at most n invocations running
// at a time, and returns once the set is drained. A failing item does not stop
// the others; every error is returned together.
// Do should only be used once on a given Work.
func (w *Work[T]) Do(n int, f func(item T) error) error {
	if n < 1 {
		panic("par.Work.Do: n < 1")
	}
	if w.running >= 1 {
		panic("par.Work.Do: already called Do")
	}

	w.running = n
	w.f = f
	w.wait.L = &w.mu

	var wg sync.WaitGroup
	for i := 0; i < n-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runner()
		}()
	}
	w.runner()
	wg.Wait()
	return w.errs.ToError()
}

// runner executes work in w until both nothing is left to do
// and all the runners are waiting for work.
func (w *Work[T]) runner() {
	for {
		w.mu.Lock()
		for len(w.todo) == 0 {
			w.waiting++
			if w.waiting == w.running {
				w.wait.Broadcast()
				w.mu.Unlock()
				return
			}
			w.wait.Wait()
			w.waiting--
		}
		item := w.todo[0]
		w.todo = w.todo[1:]
		w.mu.Unlock()

		if err := w.f(item); err != nil {
			w.mu.Lock()
			w.errs.Add(err)
			w.mu.Unlock()
		}
	}
}
