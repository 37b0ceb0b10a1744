// Package events provides the EventEmitter every component in this module
// reports through. Listeners are tracked by function pointer so they can be
// removed again, which is what the transport/socket cleanup paths rely on.
package events

import (
	"reflect"
	"sync"
)

type (
	EventName string

	Listener func(...any)

	EventEmitter interface {
		On(EventName, ...Listener)
		Once(EventName, ...Listener)
		Emit(EventName, ...any)
		RemoveListener(EventName, Listener) bool
		RemoveAllListeners(EventName) bool
		ListenerCount(EventName) int
		Clear()
	}
)

type listener struct {
	fn   Listener
	ptr  uintptr
	once *sync.Once
}

type emitter struct {
	mu        sync.RWMutex
	listeners map[EventName][]*listener
}

func New() EventEmitter {
	return &emitter{listeners: map[EventName][]*listener{}}
}

func (e *emitter) add(evt EventName, once bool, fns []Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, fn := range fns {
		l := &listener{fn: fn, ptr: reflect.ValueOf(fn).Pointer()}
		if once {
			l.once = &sync.Once{}
		}
		e.listeners[evt] = append(e.listeners[evt], l)
	}
}

func (e *emitter) On(evt EventName, fns ...Listener) {
	e.add(evt, false, fns)
}

// Once registers a listener that is removed after its first invocation.
func (e *emitter) Once(evt EventName, fns ...Listener) {
	e.add(evt, true, fns)
}

// Emit synchronously calls each listener registered for evt, in
// registration order.
func (e *emitter) Emit(evt EventName, args ...any) {
	e.mu.RLock()
	listeners := make([]*listener, len(e.listeners[evt]))
	copy(listeners, e.listeners[evt])
	e.mu.RUnlock()

	for _, l := range listeners {
		if l.once != nil {
			l.once.Do(func() {
				e.RemoveListener(evt, l.fn)
				l.fn(args...)
			})
		} else {
			l.fn(args...)
		}
	}
}

func (e *emitter) RemoveListener(evt EventName, fn Listener) bool {
	if fn == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	listeners := e.listeners[evt]
	ptr := reflect.ValueOf(fn).Pointer()
	for i, l := range listeners {
		if l.ptr == ptr {
			e.listeners[evt] = append(listeners[:i:i], listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (e *emitter) RemoveAllListeners(evt EventName) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.listeners[evt]; !ok {
		return false
	}
	delete(e.listeners, evt)
	return true
}

func (e *emitter) ListenerCount(evt EventName) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.listeners[evt])
}

func (e *emitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners = map[EventName][]*listener{}
}
