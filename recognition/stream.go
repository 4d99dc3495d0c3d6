package recognition

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"carelink/core"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// StreamingRecognizer is a continuous recognizer streaming interim and final
// text for a whole listening session. It is the preferred capability; the
// orchestrator falls back to the capture pipeline when it fails for any
// non-permission reason.
type StreamingRecognizer interface {
	StartSession(finalChan chan<- string, interimChan chan<- string, errorChan chan<- error) error
	SendAudio(pcm []byte) error
	// Finalize asks the recognizer to flush and emit a final result for the
	// audio sent so far.
	Finalize() error
	// Close tears the session down. Must be safe to call more than once.
	Close() error
}

// WSRecognizerConfig holds configuration for the websocket recognizer client.
type WSRecognizerConfig struct {
	URL      string `json:"url"`
	APIKey   string `json:"api_key"`
	Language string `json:"language"`
}

// WSRecognizer implements StreamingRecognizer over a websocket connection.
// The server streams JSON messages:
//
//	{"type": "interim"|"final"|"error", "text": "...", "message": "..."}
//
// Keep-alive pings run for the session lifetime; writes are mutex-guarded.
type WSRecognizer struct {
	config WSRecognizerConfig
	logger *core.Logger

	connMu      sync.Mutex
	conn        *websocket.Conn
	isConnected bool

	finalChan   chan<- string
	interimChan chan<- string
	errorChan   chan<- error

	ctx    context.Context
	cancel context.CancelFunc
}

type listenMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

func NewWSRecognizer(config WSRecognizerConfig, logger *core.Logger) *WSRecognizer {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &WSRecognizer{
		config: config,
		logger: logger,
	}
}

// StartSession dials the recognizer endpoint and begins relaying results to
// the provided channels.
func (w *WSRecognizer) StartSession(
	finalChan chan<- string,
	interimChan chan<- string,
	errorChan chan<- error,
) error {
	if w.config.URL == "" {
		return core.TransportError("recognizer", fmt.Errorf("no endpoint configured"))
	}

	wsURL, err := w.buildURL()
	if err != nil {
		return core.TransportError("recognizer", err)
	}

	headers := map[string][]string{}
	if w.config.APIKey != "" {
		headers["Authorization"] = []string{"Token " + w.config.APIKey}
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.Dial(wsURL, headers)
	if err != nil {
		return core.TransportError("recognizer dial", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.isConnected = true
	w.finalChan = finalChan
	w.interimChan = interimChan
	w.errorChan = errorChan
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.connMu.Unlock()

	go w.readLoop(conn)
	go w.keepAlive()
	return nil
}

func (w *WSRecognizer) buildURL() (string, error) {
	base, err := url.Parse(w.config.URL)
	if err != nil {
		return "", err
	}
	q := base.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("channels", "1")
	if w.config.Language != "" {
		q.Set("language", w.config.Language)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// SendAudio sends a PCM16 chunk to the active session.
func (w *WSRecognizer) SendAudio(pcm []byte) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if !w.isConnected || w.conn == nil {
		return fmt.Errorf("recognizer: no active session")
	}
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return core.TransportError("recognizer send", err)
	}
	return nil
}

// Finalize asks the server to flush a final result for the audio sent so far.
func (w *WSRecognizer) Finalize() error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if !w.isConnected || w.conn == nil {
		return nil
	}
	msg, err := sonic.Marshal(listenMessage{Type: "finalize"})
	if err != nil {
		return err
	}
	w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.TextMessage, msg)
}

func (w *WSRecognizer) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.ctx.Done():
			default:
				w.sendError(core.TransportError("recognizer read", err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg listenMessage
		if err := sonic.Unmarshal(message, &msg); err != nil {
			w.logger.Debug("recognizer: unparsable message", "error", err)
			continue
		}

		switch msg.Type {
		case "interim":
			if msg.Text != "" && w.interimChan != nil {
				select {
				case w.interimChan <- msg.Text:
				default:
				}
			}
		case "final":
			if w.finalChan != nil {
				select {
				case w.finalChan <- msg.Text:
				default:
				}
			}
		case "error":
			w.sendError(core.TransportError("recognizer", fmt.Errorf("%s", msg.Message)))
		}
	}
}

func (w *WSRecognizer) sendError(err error) {
	w.connMu.Lock()
	ch := w.errorChan
	w.connMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// keepAlive sends periodic websocket pings for the session lifetime.
func (w *WSRecognizer) keepAlive() {
	ticker := time.NewTicker(8 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.connMu.Lock()
			if w.isConnected && w.conn != nil {
				w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				_ = w.conn.WriteMessage(websocket.PingMessage, nil)
			}
			w.connMu.Unlock()
		}
	}
}

// Close tears down the session. Idempotent.
func (w *WSRecognizer) Close() error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	if w.conn != nil {
		w.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
		w.conn = nil
	}
	w.isConnected = false
	w.finalChan = nil
	w.interimChan = nil
	w.errorChan = nil
	return nil
}
