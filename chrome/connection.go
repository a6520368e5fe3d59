package chrome

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"

	"github.com/arismoko/strudelprobe/log"
)

const wsWriteBufferSize = 1 << 20

// Ensure Connection implements the Executor interface.
var _ cdp.Executor = &Connection{}

// Connection represents the WebSocket connection to the browser and the root
// "browser session". JSON-RPC CDP messages read from the wire are routed to
// the per-target session identified by their session ID; messages without a
// session ID belong to the root session and are handled here.
type Connection struct {
	baseEventEmitter

	ctx          context.Context
	wsURL        string
	logger       *log.Logger
	conn         *websocket.Conn
	sendCh       chan *cdproto.Message
	closeCh      chan int
	errorCh      chan error
	done         chan struct{}
	shutdownOnce sync.Once
	msgID        int64

	sessionsMu sync.RWMutex
	sessions   map[target.SessionID]*Session

	// Reuse the easyjson structs to avoid allocs per Read/Write.
	decoder jlexer.Lexer
	encoder jwriter.Writer
}

// NewConnection dials the browser WebSocket URL and starts the read and
// write loops.
func NewConnection(ctx context.Context, wsURL string, logger *log.Logger) (*Connection, error) {
	wsd := websocket.Dialer{
		HandshakeTimeout: time.Second * 60,
		Proxy:            http.ProxyFromEnvironment,
		WriteBufferSize:  wsWriteBufferSize,
	}

	conn, _, connErr := wsd.DialContext(ctx, wsURL, nil)
	if connErr != nil {
		return nil, connErr
	}

	c := Connection{
		baseEventEmitter: newBaseEventEmitter(ctx),
		ctx:              ctx,
		wsURL:            wsURL,
		logger:           logger,
		conn:             conn,
		sendCh:           make(chan *cdproto.Message, 32), // Avoid blocking in Execute
		closeCh:          make(chan int),
		errorCh:          make(chan error),
		done:             make(chan struct{}),
		msgID:            0,
		sessions:         make(map[target.SessionID]*Session),
	}

	go c.recvLoop()
	go c.sendLoop()

	return &c, nil
}

// closeConnection cleanly closes the WebSocket connection.
// Returns an error if sending the close control frame fails.
func (c *Connection) closeConnection(code int) error {
	var err error

	c.shutdownOnce.Do(func() {
		defer func() {
			_ = c.conn.Close()

			// Stop the main control loop
			close(c.done)
		}()

		err = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""),
			time.Now().Add(10*time.Second),
		)

		c.sessionsMu.Lock()
		for _, s := range c.sessions {
			s.close()
			delete(c.sessions, s.id)
		}
		c.sessionsMu.Unlock()

		c.emit(EventConnectionClose, nil)
	})

	return err
}

func (c *Connection) closeSession(sessionID target.SessionID) {
	c.sessionsMu.Lock()
	if session, ok := c.sessions[sessionID]; ok {
		session.close()
	}
	delete(c.sessions, sessionID)
	c.sessionsMu.Unlock()
}

// Attach binds to the given page's target and returns the session created
// for it.
func (c *Connection) Attach(ctx context.Context, p Page) (*Session, error) {
	action := target.AttachToTarget(target.ID(p.ID)).WithFlatten(true)
	sessionID, err := action.Do(cdp.WithExecutor(ctx, c))
	if err != nil {
		return nil, err
	}
	session := c.getSession(sessionID)
	if session == nil {
		return nil, fmt.Errorf("no session %q after attaching to target %q", sessionID, p.ID)
	}
	return session, nil
}

func (c *Connection) handleIOError(err error) {
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		// Report an unexpected closure
		select {
		case c.errorCh <- err:
		case <-c.done:
			return
		}
	}
	code := websocket.CloseGoingAway
	if e, ok := err.(*websocket.CloseError); ok {
		code = e.Code
	}
	select {
	case c.closeCh <- code:
	case <-c.done:
	}
}

func (c *Connection) getSession(id target.SessionID) *Session {
	c.sessionsMu.RLock()
	defer c.sessionsMu.RUnlock()
	return c.sessions[id]
}

func (c *Connection) recvLoop() {
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			c.handleIOError(err)
			return
		}

		c.logger.Debugf("cdp:recv", "<- %s", buf)

		var msg cdproto.Message
		c.decoder = jlexer.Lexer{Data: buf}
		msg.UnmarshalEasyJSON(&c.decoder)
		if err := c.decoder.Error(); err != nil {
			select {
			case c.errorCh <- err:
			case <-c.done:
				return
			}
		}

		if msg.Method != "" {
			// Handle attachment and detachment from targets,
			// creating and deleting sessions as necessary.
			if msg.Method == cdproto.EventTargetAttachedToTarget {
				ev, err := cdproto.UnmarshalMessage(&msg)
				if err != nil {
					c.logger.Errorf("cdp", "%s", err)
					continue
				}
				sessionID := ev.(*target.EventAttachedToTarget).SessionID
				c.sessionsMu.Lock()
				session := NewSession(c.ctx, c, sessionID, c.logger)
				c.sessions[sessionID] = session
				c.sessionsMu.Unlock()
			} else if msg.Method == cdproto.EventTargetDetachedFromTarget {
				ev, err := cdproto.UnmarshalMessage(&msg)
				if err != nil {
					c.logger.Errorf("cdp", "%s", err)
					continue
				}
				sessionID := ev.(*target.EventDetachedFromTarget).SessionID
				c.closeSession(sessionID)
			}
		}

		switch {
		case msg.SessionID != "" && (msg.Method != "" || msg.ID != 0):
			if session := c.getSession(msg.SessionID); session != nil {
				if msg.Error != nil && msg.Error.Message == "No session with given id" {
					c.closeSession(session.id)
					continue
				}

				select {
				case session.readCh <- &msg:
				case code := <-c.closeCh:
					_ = c.closeConnection(code)
				case <-c.done:
					return
				}
			}

		case msg.Method != "":
			ev, err := cdproto.UnmarshalMessage(&msg)
			if err != nil {
				c.logger.Errorf("cdp", "%s", err)
				continue
			}
			c.emit(string(msg.Method), ev)

		case msg.ID != 0:
			c.emit("", &msg)

		default:
			c.logger.Errorf("cdp", "ignoring malformed incoming message (missing id or method): %#v", msg)
		}
	}
}

func (c *Connection) send(msg *cdproto.Message, recvCh chan *cdproto.Message, res easyjson.Unmarshaler) error {
	select {
	case c.sendCh <- msg:
	case err := <-c.errorCh:
		return err
	case code := <-c.closeCh:
		_ = c.closeConnection(code)
		return &websocket.CloseError{Code: code}
	case <-c.done:
		return ErrChannelClosed
	}

	if recvCh != nil {
		// Block waiting for response.
		select {
		case msg := <-recvCh:
			switch {
			case msg == nil:
				return ErrChannelClosed
			case msg.Error != nil:
				return msg.Error
			case res != nil:
				return easyjson.Unmarshal(msg.Result, res)
			}
		case err := <-c.errorCh:
			return err
		case code := <-c.closeCh:
			_ = c.closeConnection(code)
			return &websocket.CloseError{Code: code}
		case <-c.done:
			// A reply can no longer arrive; report that instead of an
			// empty result.
			return ErrChannelClosed
		}
	}

	return nil
}

func (c *Connection) sendLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			c.encoder = jwriter.Writer{}
			msg.MarshalEasyJSON(&c.encoder)
			if err := c.encoder.Error; err != nil {
				select {
				case c.errorCh <- err:
				case <-c.done:
					return
				}
			}

			buf, _ := c.encoder.BuildBytes()
			c.logger.Debugf("cdp:send", "-> %s", buf)
			writer, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.handleIOError(err)
				return
			}
			if _, err := writer.Write(buf); err != nil {
				c.handleIOError(err)
				return
			}
			if err := writer.Close(); err != nil {
				c.handleIOError(err)
				return
			}
		case code := <-c.closeCh:
			_ = c.closeConnection(code)
		case <-c.done:
			return
		}
	}
}

// Close cleanly closes the WebSocket connection and all sessions on it.
func (c *Connection) Close() {
	_ = c.closeConnection(websocket.CloseGoingAway)
}

// Execute implements cdp.Executor and performs a synchronous send and receive.
func (c *Connection) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	id := atomic.AddInt64(&c.msgID, 1)

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
	c.onAll(evCancelCtx, chEvHandler)
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
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: buf,
	}
	return c.send(msg, ch, res)
}
