package chrome

import (
	"context"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"

	"github.com/arismoko/strudelprobe/log"
)

// Ensure Session implements the Executor interface.
var _ cdp.Executor = &Session{}

// Session represents a CDP session to a target. It owns its own message ID
// space; requests are tagged with the session ID and replies are routed back
// here by the connection's receive loop.
type Session struct {
	baseEventEmitter

	ctx    context.Context
	conn   *Connection
	id     target.SessionID
	logger *log.Logger
	msgID  int64
	readCh chan *cdproto.Message
	done   chan struct{}
	closed bool
}

// NewSession creates a new session.
func NewSession(ctx context.Context, conn *Connection, id target.SessionID, logger *log.Logger) *Session {
	s := Session{
		baseEventEmitter: newBaseEventEmitter(ctx),
		ctx:              ctx,
		conn:             conn,
		id:               id,
		logger:           logger,
		msgID:            0,
		readCh:           make(chan *cdproto.Message),
		done:             make(chan struct{}),
	}
	go s.readLoop()
	return &s
}

// ID returns the CDP session ID.
func (s *Session) ID() target.SessionID {
	return s.id
}

func (s *Session) close() {
	if s.closed {
		return
	}

	// Stop the read loop
	close(s.done)
	s.closed = true

	s.emit(EventSessionClosed, nil)
}

func (s *Session) readLoop() {
	for {
		select {
		case msg := <-s.readCh:
			ev, err := cdproto.UnmarshalMessage(msg)
			if err != nil {
				// Command replies carry no method and events from newer or
				// older browsers may be unknown to cdproto. Emit the raw
				// message and let interested handlers match on it.
				if _, ok := err.(cdp.ErrUnknownCommandOrEvent); ok {
					s.emit("", msg)
					continue
				}
				s.logger.Errorf("cdp", "%s", err)
				continue
			}
			s.emit(string(msg.Method), ev)
		case <-s.done:
			return
		}
	}
}

// Detach detaches the session from its target. The connection stays usable
// for other sessions.
func (s *Session) Detach(ctx context.Context) error {
	action := target.DetachFromTarget().WithSessionID(s.id)
	return action.Do(cdp.WithExecutor(ctx, s.conn))
}

// Execute implements the cdp.Executor interface.
func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	id := atomic.AddInt64(&s.msgID, 1)

	// Setup event handler used to block for response to message being sent.
	ch := make(chan *cdproto.Message, 1)
	evCancelCtx, evCancelFn := context.WithCancel(ctx)
	chEvHandler := make(chan Event)
	go func() {
		for {
			select {
			case <-evCancelCtx.Done():
				return
			case ev := <-chEvHandler:
				if msg, ok := ev.data.(*cdproto.Message); ok && msg.ID == id {
					select {
					case <-evCancelCtx.Done():
					case ch <- msg:
						// We expect only one response with the matching message ID,
						// then remove event handler by cancelling context and stopping goroutine.
						evCancelFn()
						return
					}
				}
			}
		}
	}()
	s.onAll(evCancelCtx, chEvHandler)
	defer evCancelFn() // Remove event handler

	// Send the message
	var buf []byte
	if params != nil {
		var err error
		buf, err = easyjson.Marshal(params)
		if err != nil {
			return err
		}
	}
	msg := &cdproto.Message{
		ID:        id,
		SessionID: s.id,
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}
	return s.conn.send(msg, ch, res)
}
