package editor

import "sync"

// Subscribe registers a render listener. The channel always holds the most
// recent snapshot: a slow reader skips intermediate frames but never blocks
// the engine. The returned function unsubscribes and closes the channel; it
// is safe to call more than once.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	ch <- e.snapshotLocked()
	e.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			e.mu.Lock()
			if sub, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(sub)
			}
			e.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// Close detaches every subscriber.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
}

func (e *Engine) publishLocked() {
	e.version++
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshotLocked()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Drop the stale frame and replace it with the newest one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
