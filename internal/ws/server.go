package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/2jSoftware/s2t/internal/metrics"
	"github.com/2jSoftware/s2t/internal/pipeline"
	"github.com/2jSoftware/s2t/internal/transcript"
)

const maxMessageSize = 64 * 1024

// Recorder is the part of the session state a client may change.
type Recorder interface {
	SetRecording(on bool, deviceID string) bool
}

// Server runs one session per websocket client: transcripts from the bus
// are pushed to the client while control messages from it update the
// recording state.
type Server struct {
	upgrader websocket.Upgrader
	bus      *transcript.Bus
	state    Recorder
	metrics  *metrics.Metrics
}

var _ Recorder = (*pipeline.State)(nil)

func NewServer(bus *transcript.Bus, state Recorder, m *metrics.Metrics) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 4,
		},
		bus:     bus,
		state:   state,
		metrics: m,
	}
}

// controlMessage is the only inbound message. Both camelCase and snake_case
// field names are accepted.
type controlMessage struct {
	Type             string `json:"type"`
	IsRecording      *bool  `json:"isRecording"`
	IsRecordingSnake *bool  `json:"is_recording"`
	DeviceID         string `json:"deviceId"`
	DeviceIDSnake    string `json:"device_id"`
}

func (m controlMessage) recording() bool {
	switch {
	case m.IsRecording != nil:
		return *m.IsRecording
	case m.IsRecordingSnake != nil:
		return *m.IsRecordingSnake
	default:
		return false
	}
}

func (m controlMessage) device() string {
	if m.DeviceID != "" {
		return m.DeviceID
	}
	return m.DeviceIDSnake
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	logger := log.With().Str("session", uuid.NewString()).Str("remote", r.RemoteAddr).Logger()
	s.metrics.SessionsTotal.Inc()
	s.metrics.ActiveSessions.Inc()
	defer s.metrics.ActiveSessions.Dec()
	logger.Info().Msg("client connected")

	// The forwarder stops on its own write failure; cancel only releases it
	// when the client goes away while no transcript is pending.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := s.bus.Subscribe()
	go s.forward(ctx, conn, sub, logger)

	s.readLoop(conn, logger)
	logger.Info().Msg("client disconnected")
}

// forward pushes every transcript to the client until a write fails.
func (s *Server) forward(ctx context.Context, conn *websocket.Conn, sub *transcript.Subscription, logger zerolog.Logger) {
	defer sub.Close()
	for {
		rcv, err := sub.Recv(ctx)
		if err != nil {
			return
		}
		switch rcv.Status {
		case transcript.Closed:
			return
		case transcript.Lagged:
			s.metrics.LaggedEvents.Add(float64(rcv.Missed))
			logger.Warn().Uint64("missed", rcv.Missed).Msg("client lagging, transcripts skipped")
			continue
		}
		if err := conn.WriteJSON(rcv.Event); err != nil {
			logger.Debug().Err(err).Msg("send failed, stopping forwarder")
			return
		}
	}
}

func (s *Server) readLoop(conn *websocket.Conn, logger zerolog.Logger) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		logger.Debug().Bytes("payload", data).Msg("received websocket message")
		s.handleControl(data, logger)
	}
}

// handleControl applies one inbound message and returns its outcome label.
// Anything that is not a well-formed recording_state message is ignored.
func (s *Server) handleControl(data []byte, logger zerolog.Logger) string {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "recording_state" {
		s.metrics.ControlMessages.WithLabelValues(metrics.ControlIgnored).Inc()
		return metrics.ControlIgnored
	}
	on := msg.recording()
	if !s.state.SetRecording(on, msg.device()) {
		s.metrics.ControlMessages.WithLabelValues(metrics.ControlDropped).Inc()
		logger.Warn().Bool("recording", on).Msg("recording state update dropped: session state busy")
		return metrics.ControlDropped
	}
	s.metrics.ControlMessages.WithLabelValues(metrics.ControlApplied).Inc()
	return metrics.ControlApplied
}
