package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBufferSize is the number of pending updates kept while the
	// server is unreachable.
	DefaultBufferSize = 64
	// DefaultSource is the $source label of published deltas.
	DefaultSource = "sensepipe"

	writeTimeout = 5 * time.Second
	errorsBuffer = 16
)

var (
	// ErrEvicted is reported when a full buffer drops its oldest update.
	ErrEvicted = errors.New("signalk: buffer full, evicted oldest update")
	// ErrNotConnected is reported when an update is dropped for lack of a connection.
	ErrNotConnected = errors.New("signalk: not connected")
)

// SignalKConfig configures the Signal K delta publisher.
type SignalKConfig struct {
	// URL of the server's stream endpoint, e.g.
	// ws://192.168.5.1:3000/signalk/v1/stream?subscribe=none
	URL        string
	Token      string
	Source     string
	BufferSize int
}

// SignalK streams values to a Signal K server as delta messages over a
// websocket. Publish never blocks; Run owns the connection.
type SignalK struct {
	cfg  SignalKConfig
	buf  chan update
	errs chan error
	dial dialFunc
	now  func() time.Time
}

type update struct {
	path  string
	value float64
	meta  Metadata
	at    time.Time
}

// dialFunc opens the websocket. Tests replace it.
type dialFunc func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)

func defaultDial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// NewSignalK returns a publisher for cfg. Zero fields select defaults.
func NewSignalK(cfg SignalKConfig) *SignalK {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	return &SignalK{
		cfg:  cfg,
		buf:  make(chan update, cfg.BufferSize),
		errs: make(chan error, errorsBuffer),
		dial: defaultDial,
		now:  time.Now,
	}
}

// Errors returns the channel failures are reported on. Reports are dropped
// when nobody drains it.
func (s *SignalK) Errors() <-chan error { return s.errs }

// Publish enqueues a value. If the buffer is full the oldest entry is evicted
// to make room.
func (s *SignalK) Publish(path string, value float64, meta Metadata) {
	u := update{path: path, value: value, meta: meta, at: s.now()}
	select {
	case s.buf <- u:
	default:
		select {
		case <-s.buf:
			s.report(ErrEvicted)
		default:
		}
		select {
		case s.buf <- u:
		default:
		}
	}
}

// Run drains the buffer until ctx is cancelled. The connection is opened
// lazily; after a failure the next update triggers a fresh dial.
func (s *SignalK) Run(ctx context.Context) error {
	var (
		conn      *websocket.Conn
		announced map[string]bool
	)
	defer func() {
		if conn != nil {
			closeConn(conn)
		}
	}()

	for {
		var u update
		select {
		case <-ctx.Done():
			return nil
		case u = <-s.buf:
		}

		if conn == nil {
			c, err := s.connect(ctx)
			if err != nil {
				s.report(errors.Wrapf(ErrNotConnected, "dropping %s: %v", u.path, err))
				continue
			}
			conn, announced = c, make(map[string]bool)
		}

		withMeta := !announced[u.path] && !u.meta.IsZero()
		msg, err := json.Marshal(s.delta(u, withMeta))
		if err != nil {
			s.report(errors.Wrapf(err, "signalk: encode %s", u.path))
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.report(errors.Wrap(err, "signalk: write"))
			conn.Close()
			conn = nil
			continue
		}
		announced[u.path] = true
	}
}

func (s *SignalK) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	conn, err := s.dial(ctx, s.cfg.URL, header)
	if err != nil {
		return nil, err
	}
	log.WithField("url", s.cfg.URL).Info("signalk: connected")

	// The server sends a hello and may push deltas; discard them so control
	// frames get processed. The loop exits once the connection is closed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return conn, nil
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

func (s *SignalK) report(err error) {
	log.WithField("url", s.cfg.URL).Warn(err)
	select {
	case s.errs <- err:
	default:
	}
}

func (s *SignalK) delta(u update, withMeta bool) delta {
	up := deltaUpdate{
		Source:    deltaSource{Label: s.cfg.Source},
		Timestamp: u.at.UTC().Format("2006-01-02T15:04:05.000Z"),
		Values:    []pathValue{{Path: u.path, Value: u.value}},
	}
	if withMeta {
		up.Meta = []pathMeta{{
			Path:  u.path,
			Value: metaValue{Units: u.meta.Units(), DisplayName: u.meta.Label()},
		}}
	}
	return delta{Context: "vessels.self", Updates: []deltaUpdate{up}}
}

type delta struct {
	Context string        `json:"context"`
	Updates []deltaUpdate `json:"updates"`
}

type deltaUpdate struct {
	Source    deltaSource `json:"source"`
	Timestamp string      `json:"timestamp"`
	Values    []pathValue `json:"values"`
	Meta      []pathMeta  `json:"meta,omitempty"`
}

type deltaSource struct {
	Label string `json:"label"`
}

type pathValue struct {
	Path  string  `json:"path"`
	Value float64 `json:"value"`
}

type pathMeta struct {
	Path  string    `json:"path"`
	Value metaValue `json:"value"`
}

type metaValue struct {
	Units       string `json:"units,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}
