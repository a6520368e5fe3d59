package chrome

import (
	"context"
)

const (
	// Connection
	EventConnectionClose string = "close"

	// Session
	EventSessionClosed string = "close"
)

// Event as emitted by the connection and its sessions.
type Event struct {
	typ  string
	data interface{}
}

type eventHandler struct {
	ctx context.Context
	ch  chan Event
}

// baseEventEmitter fans events out to registered handlers. The connection
// and each session embed one; Execute registers a handler to await the reply
// with its message ID.
type baseEventEmitter struct {
	handlers []eventHandler

	handlersCh chan func() chan struct{}
	ctx        context.Context
}

func newBaseEventEmitter(ctx context.Context) baseEventEmitter {
	bem := baseEventEmitter{
		handlers:   make([]eventHandler, 0),
		handlersCh: make(chan func() chan struct{}),
		ctx:        ctx,
	}
	go bem.handleHandlers(ctx)
	return bem
}

// handleHandlers processes one mutation or emit at a time, serializing all
// access to the handler list in a single goroutine.
func (e *baseEventEmitter) handleHandlers(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.handlersCh:
			select {
			case <-ctx.Done():
				return
			default:
			}
			done := fn()
			done <- struct{}{}
		}
	}
}

// sync is a helper for synchronized access to the baseEventEmitter.
func (e *baseEventEmitter) sync(fn func()) {
	done := make(chan struct{})
	select {
	case <-e.ctx.Done():
		return
	case e.handlersCh <- func() chan struct{} {
		fn()
		return done
	}:
	}
	<-done
}

func (e *baseEventEmitter) emit(event string, data interface{}) {
	e.sync(func() {
		handlers := e.handlers
		for i := 0; i < len(handlers); {
			handler := handlers[i]
			select {
			case <-handler.ctx.Done():
				handlers = append(handlers[:i], handlers[i+1:]...)
				continue
			default:
				go func() {
					handler.ch <- Event{event, data}
				}()
				i++
			}
		}
		e.handlers = handlers
	})
}

// onAll registers a handler for all events until its context is done.
func (e *baseEventEmitter) onAll(ctx context.Context, ch chan Event) {
	e.sync(func() {
		e.handlers = append(e.handlers, eventHandler{ctx, ch})
	})
}
