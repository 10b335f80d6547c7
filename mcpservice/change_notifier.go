package mcpservice

import "sync"

// ChangeNotifier is an in-process fan-out of "something changed" signals.
// The zero value is ready to use.
type ChangeNotifier struct {
	mu     sync.RWMutex
	subs   []chan struct{}
	closed bool
}

// Notify signals every subscriber. Sends never block; a subscriber with a
// pending signal does not get a second one.
func (cn *ChangeNotifier) Notify() {
	cn.mu.RLock()
	defer cn.mu.RUnlock()
	if cn.closed {
		return
	}
	for _, ch := range cn.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscriber returns a channel that receives a signal after each Notify.
// After Close the channel is closed.
func (cn *ChangeNotifier) Subscriber() <-chan struct{} {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	ch := make(chan struct{}, 1)
	if cn.closed {
		close(ch)
		return ch
	}
	cn.subs = append(cn.subs, ch)
	return ch
}

// Close closes every subscriber channel. Later Notify calls are no-ops.
func (cn *ChangeNotifier) Close() {
	cn.mu.Lock()
	if cn.closed {
		cn.mu.Unlock()
		return
	}
	cn.closed = true
	subs := cn.subs
	cn.subs = nil
	cn.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}
