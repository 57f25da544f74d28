package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sitegen/internal/domain"
	"sitegen/internal/logging"
	"sitegen/internal/ports"
)

const (
	defaultURL          = "ws://localhost:8000/ws"
	defaultWriteTimeout = 5 * time.Second
)

// Config controls the transcription websocket.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Dialer implements ports.ChannelDialer over gorilla websocket.
type Dialer struct {
	cfg    Config
	ws     *websocket.Dialer
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = defaultURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Dialer{
		cfg:    cfg,
		ws:     &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: logging.OrDiscard(logger),
	}
}

// Open returns a channel in the Connecting state and finishes the handshake in
// the background. The listener learns the outcome through ChannelStateChanged.
func (d *Dialer) Open(ctx context.Context, listener ports.ChannelListener) ports.TranscriptionChannel {
	ch := newChannel(listener, d.logger)
	ch.writeTimeout = d.cfg.WriteTimeout

	wsURL, err := buildChannelURL(d.cfg.URL)
	if err != nil {
		go ch.connect(ctx, func(context.Context) (wsConn, error) { return nil, err })
		return ch
	}

	go ch.connect(ctx, func(ctx context.Context) (wsConn, error) {
		conn, _, err := d.ws.DialContext(ctx, wsURL, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	return ch
}

type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Channel is one transcription connection with exactly one listener.
type Channel struct {
	listener     ports.ChannelListener
	logger       *slog.Logger
	writeTimeout time.Duration

	mu     sync.Mutex
	state  domain.ConnectionState
	conn   wsConn
	closed bool
	cancel context.CancelFunc

	// dispatchMu serializes listener callbacks; Close takes it once after
	// marking the channel closed so no callback can run after Close returns.
	dispatchMu sync.Mutex
	// writeMu serializes data frames only. Close never takes it.
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

func newChannel(listener ports.ChannelListener, logger *slog.Logger) *Channel {
	return &Channel{
		listener:     listener,
		logger:       logging.OrDiscard(logger),
		writeTimeout: defaultWriteTimeout,
		state:        domain.ConnectionConnecting,
		done:         make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Channel) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send transmits one audio frame. Frames are dropped unless the channel is
// Open. A write that stalls past the write timeout fails the channel.
func (c *Channel) Send(frame domain.AudioFrame) error {
	if len(frame) == 0 {
		return nil
	}

	c.mu.Lock()
	state, conn := c.state, c.conn
	c.mu.Unlock()
	if state != domain.ConnectionOpen || conn == nil {
		c.logger.Debug("dropping audio frame", "state", state, "bytes", len(frame))
		return nil
	}

	c.writeMu.Lock()
	err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err == nil {
		err = conn.WriteMessage(websocket.BinaryMessage, frame)
	}
	c.writeMu.Unlock()
	if err == nil {
		return nil
	}
	if c.isClosed() {
		return nil
	}

	err = fmt.Errorf("%w: failed to send audio frame: %v", domain.ErrTransport, err)
	c.fail(err)
	return err
}

// Close tears the channel down. It is idempotent and no listener callback
// fires after it returns.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.state = domain.ConnectionClosed
		conn := c.conn
		cancel := c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			// WriteControl may run concurrently with a stalled Send; closing
			// the conn unblocks that Send.
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
		}

		c.dispatchMu.Lock()
		c.dispatchMu.Unlock()
	})
	<-c.done
	return nil
}

func (c *Channel) connect(parent context.Context, dial func(context.Context) (wsConn, error)) {
	defer close(c.done)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := dial(ctx)
	if err != nil {
		if c.isClosed() {
			return
		}
		c.fail(fmt.Errorf("%w: failed to connect to transcription endpoint: %v", domain.ErrTransport, err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = domain.ConnectionOpen
	c.mu.Unlock()

	c.logger.Info("transcription channel open")
	c.dispatch(func() { c.listener.ChannelStateChanged(domain.ConnectionOpen, nil) })

	c.readLoop(conn)
}

func (c *Channel) readLoop(conn wsConn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				c.setState(domain.ConnectionClosed)
				c.logger.Info("transcription channel closed by remote")
				c.dispatch(func() { c.listener.ChannelStateChanged(domain.ConnectionClosed, nil) })
				return
			}
			c.fail(fmt.Errorf("%w: failed to read transcription message: %v", domain.ErrTransport, err))
			return
		}
		c.handle(payload)
	}
}

func (c *Channel) handle(payload []byte) {
	event, ok, err := parseTranscription(payload)
	if err != nil {
		c.logger.Warn("discarding malformed transcription message", "error", err, "bytes", len(payload))
		return
	}
	if !ok {
		c.logger.Debug("ignoring message without transcription")
		return
	}
	c.dispatch(func() { c.listener.Transcription(event) })
}

func (c *Channel) dispatch(fn func()) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	if c.isClosed() || c.listener == nil {
		return
	}
	fn()
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	if c.closed || c.state == domain.ConnectionErrored {
		c.mu.Unlock()
		return
	}
	c.state = domain.ConnectionErrored
	c.mu.Unlock()

	c.logger.Error("transcription channel error", "error", err)
	c.dispatch(func() { c.listener.ChannelStateChanged(domain.ConnectionErrored, err) })
}

func (c *Channel) setState(state domain.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.state = state
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type inboundMessage struct {
	Transcription *string `json:"transcription"`
}

// parseTranscription reports ok=false for well-formed messages of any other shape.
func parseTranscription(payload []byte) (domain.TranscriptionEvent, bool, error) {
	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.TranscriptionEvent{}, false, err
	}
	if msg.Transcription == nil {
		return domain.TranscriptionEvent{}, false, nil
	}
	text := strings.TrimSpace(*msg.Transcription)
	if text == "" {
		return domain.TranscriptionEvent{}, false, nil
	}
	return domain.TranscriptionEvent{Text: text}, true, nil
}

func buildChannelURL(raw string) (string, error) {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = defaultURL
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid transcription URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", errors.New("transcription URL must use ws or wss")
	}
	if parsed.Host == "" {
		return "", errors.New("transcription URL is missing a host")
	}
	return parsed.String(), nil
}
