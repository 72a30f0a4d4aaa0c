package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// MaxMessageSize bounds the size of one frame.
const MaxMessageSize = 4 << 20

// WebsocketTransport implements the Transport interface over a websocket
// connection. Receive must be called with a context that lives as long as the
// connection: a cancelled read closes the websocket.
type WebsocketTransport struct {
	conn       *websocket.Conn
	remoteAddr string
	closed     int32
}

// NewWebsocketTransport wraps an established connection.
func NewWebsocketTransport(conn *websocket.Conn, remoteAddr string) *WebsocketTransport {
	conn.SetReadLimit(MaxMessageSize)
	return &WebsocketTransport{
		conn:       conn,
		remoteAddr: remoteAddr,
	}
}

// Send implements the Transport interface.
func (w *WebsocketTransport) Send(ctx context.Context, msg *Message) error {
	if !w.IsOpen() {
		return ErrTransportShutdown
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := w.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		w.markClosed()
		return err
	}
	return nil
}

// Receive implements the Transport interface.
func (w *WebsocketTransport) Receive(ctx context.Context) (*Message, error) {
	if !w.IsOpen() {
		return nil, ErrTransportShutdown
	}
	typ, data, err := w.conn.Read(ctx)
	if err != nil {
		w.markClosed()
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, ErrTransportShutdown
		}
		return nil, err
	}
	if typ != websocket.MessageBinary {
		return nil, fmt.Errorf("unexpected %v frame", typ)
	}
	return Decode(data)
}

// IsOpen implements the Transport interface.
func (w *WebsocketTransport) IsOpen() bool {
	return atomic.LoadInt32(&w.closed) == 0
}

// RemoteAddr implements the Transport interface.
func (w *WebsocketTransport) RemoteAddr() string {
	return w.remoteAddr
}

// Close implements the Transport interface.
func (w *WebsocketTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		return nil
	}
	return w.conn.Close(websocket.StatusNormalClosure, "closed")
}

func (w *WebsocketTransport) markClosed() {
	atomic.StoreInt32(&w.closed, 1)
}

// WebsocketDialer implements the Dialer interface.
type WebsocketDialer struct {
	Timeout time.Duration
}

// Dial implements the Dialer interface. addr is host:port or a ws:// URL.
func (d *WebsocketDialer) Dial(ctx context.Context, addr string) (Transport, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	url := addr
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + url
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebsocketTransport(conn, addr), nil
}

// WebsocketListener implements the Listener interface with an HTTP server
// upgrading every request to a websocket.
type WebsocketListener struct {
	listener net.Listener
	server   *http.Server
	acceptCh chan *WebsocketTransport
	closeCh  chan struct{}
	once     sync.Once
	logger   *logrus.Entry
}

// NewWebsocketListener binds bindAddr and starts serving.
func NewWebsocketListener(bindAddr string, logger *logrus.Entry) (*WebsocketListener, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	l := &WebsocketListener{
		listener: list,
		acceptCh: make(chan *WebsocketTransport),
		closeCh:  make(chan struct{}),
		logger:   logger,
	}
	l.server = &http.Server{
		Handler:           http.HandlerFunc(l.serveHTTP),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(list); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.WithError(err).Error("Websocket listener stopped")
		}
	}()

	return l, nil
}

func (l *WebsocketListener) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		l.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	t := NewWebsocketTransport(conn, r.RemoteAddr)

	// The connection is hijacked and outlives this handler. Whoever accepts
	// it owns it.
	select {
	case l.acceptCh <- t:
	case <-l.closeCh:
		t.Close()
	}
}

// Accept implements the Listener interface.
func (l *WebsocketListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case t := <-l.acceptCh:
		return t, nil
	case <-l.closeCh:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr implements the Listener interface.
func (l *WebsocketListener) Addr() string {
	return l.listener.Addr().String()
}

// Close implements the Listener interface.
func (l *WebsocketListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closeCh)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
	})
	return err
}
