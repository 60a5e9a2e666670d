// Package monitor follows a live room's message stream: chat, gifts, likes,
// arrivals and follows. It connects with the room id, visitor unique id and
// ttwid produced by a scrape.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/use-agent/livebox/config"
	"github.com/use-agent/livebox/models"
	"github.com/use-agent/livebox/webhook"
)

// Message kinds. The values double as webhook event suffixes.
const (
	KindChat   = "chat"
	KindGift   = "gift"
	KindLike   = "like"
	KindMember = "comein"
	KindFollow = "follow"
)

// Message is one room event.
type Message struct {
	Kind   string `json:"type"`
	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name"`

	// Text is a one-line rendering of the event.
	Text string `json:"msg"`

	Content      string `json:"content,omitempty"`
	GiftName     string `json:"gift_name,omitempty"`
	GiftCount    uint64 `json:"gift_count,omitempty"`
	DiamondCount uint64 `json:"diamond_count,omitempty"`
	LikeCount    uint64 `json:"count,omitempty"`
	LikeTotal    uint64 `json:"total,omitempty"`
	MemberCount  uint64 `json:"member_count,omitempty"`
	FollowCount  uint64 `json:"follow_count,omitempty"`
}

// Target identifies the room to follow.
type Target struct {
	RoomID   string
	UniqueID string
	TTWID    string
}

// ErrRoomEnded is returned by TargetFromRoom for a stream that is over.
var ErrRoomEnded = errors.New("monitor: stream has ended")

// TargetFromRoom builds a Target from a scraped room.
func TargetFromRoom(room *models.Room) (Target, error) {
	if room.Ended {
		return Target{}, ErrRoomEnded
	}
	id := gjson.GetBytes(room.Payload, "id_str").String()
	if id == "" {
		return Target{}, errors.New("monitor: room payload has no id_str")
	}
	return Target{RoomID: id, UniqueID: room.SessionID, TTWID: room.TTWID}, nil
}

// Signer produces the signature query parameter of a room connection.
type Signer interface {
	Sign(ctx context.Context, roomID, uniqueID string) (string, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, roomID, uniqueID string) (string, error)

func (f SignerFunc) Sign(ctx context.Context, roomID, uniqueID string) (string, error) {
	return f(ctx, roomID, uniqueID)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSigner sets the connection signer. Without one the signature is sent
// empty, which the site accepts for some rooms.
func WithSigner(s Signer) Option {
	return func(m *Monitor) { m.signer = s }
}

// Monitor connects to room message streams.
type Monitor struct {
	cfg       config.MonitorConfig
	userAgent string
	signer    Signer
	dialer    *websocket.Dialer
	logger    *slog.Logger
}

// New creates a Monitor.
func New(cfg config.MonitorConfig, userAgent string, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 10 * time.Second
	}
	m := &Monitor{
		cfg:       cfg,
		userAgent: userAgent,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With("component", "monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// endpoint builds the push URL for t.
func (m *Monitor) endpoint(ctx context.Context, t Target) (string, error) {
	u, err := url.Parse(m.cfg.PushURL)
	if err != nil {
		return "", fmt.Errorf("monitor: push url: %w", err)
	}
	var signature string
	if m.signer != nil {
		if signature, err = m.signer.Sign(ctx, t.RoomID, t.UniqueID); err != nil {
			return "", fmt.Errorf("monitor: sign: %w", err)
		}
	}
	q := url.Values{
		"room_id":             {t.RoomID},
		"compress":            {"gzip"},
		"version_code":        {"180800"},
		"webcast_sdk_version": {"1.0.14-beta.0"},
		"live_id":             {"1"},
		"did_rule":            {"3"},
		"user_unique_id":      {t.UniqueID},
		"identity":            {"audience"},
		"signature":           {signature},
		"aid":                 {"6383"},
		"device_platform":     {"web"},
		"browser_language":    {"zh-CN"},
		"browser_platform":    {"Win32"},
		"browser_name":        {"Mozilla"},
		"browser_version":     {"5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"},
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run streams t's messages to handle until ctx ends or the server closes
// the stream normally, both returning nil, or the connection fails. handle
// runs on the reading goroutine.
func (m *Monitor) Run(ctx context.Context, t Target, handle func(Message)) error {
	if t.RoomID == "" {
		return errors.New("monitor: room id is required")
	}
	endpoint, err := m.endpoint(ctx, t)
	if err != nil {
		return err
	}

	header := http.Header{}
	if m.userAgent != "" {
		header.Set("User-Agent", m.userAgent)
	}
	if t.TTWID != "" {
		header.Set("Cookie", "ttwid="+t.TTWID)
	} else {
		m.logger.Warn("connecting without ttwid", "room_id", t.RoomID)
	}

	conn, resp, err := m.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if resp != nil {
			return fmt.Errorf("monitor: connect: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("monitor: connect: %w", err)
	}
	m.logger.Info("room stream connected", "room_id", t.RoomID)

	s := &stream{conn: conn, logger: m.logger}
	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-runCtx.Done()
		conn.Close()
	}()
	go func() {
		defer wg.Done()
		s.heartbeat(runCtx, m.cfg.Heartbeat)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				m.logger.Info("room stream stopped", "room_id", t.RoomID)
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.logger.Info("room stream closed by server", "room_id", t.RoomID)
				return nil
			}
			return fmt.Errorf("monitor: read: %w", err)
		}
		if err := s.dispatch(data, handle); err != nil {
			m.logger.Warn("undecodable frame skipped", "room_id", t.RoomID, "error", err)
		}
	}
}

// stream is one open connection. Writes are serialized.
type stream struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
}

func (s *stream) write(f *pushFrame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, f.marshal())
}

func (s *stream) heartbeat(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.write(&pushFrame{PayloadType: payloadHeartbeat}); err != nil {
			s.logger.Debug("heartbeat failed", "error", err)
			return
		}
	}
}

// dispatch decodes one binary frame, acknowledges it when asked and hands
// the surfaced messages to handle in order.
func (s *stream) dispatch(data []byte, handle func(Message)) error {
	frame, err := unmarshalFrame(data)
	if err != nil {
		return err
	}
	if frame.PayloadType != payloadMessage {
		return nil
	}
	payload, err := framePayload(frame)
	if err != nil {
		return err
	}
	resp, err := unmarshalResponse(payload)
	if err != nil {
		return err
	}
	if resp.NeedAck {
		ack := &pushFrame{LogID: frame.LogID, PayloadType: payloadAck, Payload: []byte(resp.InternalExt)}
		if err := s.write(ack); err != nil {
			s.logger.Debug("ack failed", "log_id", frame.LogID, "error", err)
		}
	}
	for _, e := range resp.Messages {
		msg, ok, err := decodeMessage(e)
		if err != nil {
			s.logger.Debug("message skipped", "method", e.Method, "error", err)
			continue
		}
		if ok {
			handle(msg)
		}
	}
	return nil
}

// EventPrefix prefixes the webhook event type of forwarded messages.
const EventPrefix = "live."

// Forward returns a handler that pushes each message to n as a
// "live.<kind>" event tagged with requestID.
func Forward(n *webhook.Notifier, requestID string) func(Message) {
	return func(msg Message) {
		n.DeliverAsync(webhook.NewEvent(EventPrefix+msg.Kind, requestID, msg))
	}
}
