package repl

import "sync"

// Pending is the completion handle returned by Evaluate, Stop and
// Toggle. It resolves exactly once.
type Pending struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the operation completed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the operation's error. Only meaningful after Done.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until completion and returns the error.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}

// resolved returns an already-completed handle.
func resolved(err error) *Pending {
	p := newPending()
	p.resolve(err)
	return p
}
