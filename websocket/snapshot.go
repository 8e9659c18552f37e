package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-spatial/models"
	"github.com/aukilabs/hagall-spatial/simulation"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// ClientIDHeader is the request header that carries the id of a viewer. A
// random id is generated when it is missing.
const ClientIDHeader = "X-Client-Id"

const defaultIdleTimeout = time.Minute

// SnapshotSource provides the latest simulation snapshot.
type SnapshotSource interface {
	Snapshot() simulation.Snapshot
}

// SnapshotHandler streams the snapshots of a world to a viewer.
type SnapshotHandler struct {
	// The world to watch.
	World *models.World

	// The source of the snapshot sent on connection and on request.
	Source SnapshotSource

	// The duration a viewer can stay silent before being disconnected.
	ClientIdleTimeout time.Duration

	conn     *websocket.Conn
	clientID string
	viewer   *models.Viewer
}

func (h *SnapshotHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	if req := conn.Request(); req != nil {
		h.clientID = req.Header.Get(ClientIDHeader)
	}
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
}

func (h *SnapshotHandler) HandleWatch(ctx context.Context, respond ResponseSender) error {
	if h.World == nil || h.Source == nil {
		return errors.New("snapshot handler is not configured").
			WithTag("client_id", h.clientID)
	}

	// Client ids are not unique across connections.
	h.viewer = &models.Viewer{
		ID: h.clientID + "/" + uuid.NewString(),
		Sender: snapshotSender{
			clientID: h.clientID,
			respond:  respond,
		},
	}
	h.World.AddViewer(h.viewer)

	h.sendSnapshot(respond, 0)
	return nil
}

func (h *SnapshotHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Msg{
		Type:      MsgTypePong,
		RequestID: msg.RequestID,
		Timestamp: time.Now(),
		ClientID:  h.clientID,
	})
	return nil
}

func (h *SnapshotHandler) HandleSnapshotRequest(ctx context.Context, respond ResponseSender, msg Msg) error {
	if h.viewer == nil {
		return errors.New("snapshot requested before watching").
			WithType(ErrTypeMsgSkip).
			WithTag("client_id", h.clientID)
	}

	h.sendSnapshot(respond, msg.RequestID)
	return nil
}

func (h *SnapshotHandler) HandleDisconnect(err error) {
	if h.viewer != nil {
		h.World.RemoveViewer(h.viewer)
	}
}

func (h *SnapshotHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(h.conn, &b); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(b, &msg); err != nil {
			return Msg{}, len(b), errors.New("decoding message failed").
				WithType(ErrTypeMsgDecode).
				Wrap(err)
		}
		return msg, len(b), nil
	}
}

func (h *SnapshotHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		b, err := json.Marshal(msg)
		if err != nil {
			return 0, errors.New("encoding message failed").
				WithType(ErrTypeMsgEncode).
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(h.conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}

func (h *SnapshotHandler) Close() {
}

func (h *SnapshotHandler) IdleTimeout() time.Duration {
	if h.ClientIdleTimeout <= 0 {
		return defaultIdleTimeout
	}
	return h.ClientIdleTimeout
}

func (h *SnapshotHandler) GetClientID() string {
	return h.clientID
}

func (h *SnapshotHandler) sendSnapshot(respond ResponseSender, requestID uint32) {
	snapshot := h.Source.Snapshot()
	respond.Send(Msg{
		Type:      MsgTypeSnapshot,
		RequestID: requestID,
		Timestamp: time.Now(),
		ClientID:  h.clientID,
		Snapshot:  &snapshot,
	})
}

// snapshotSender forwards world broadcasts to the send queue of a viewer.
type snapshotSender struct {
	clientID string
	respond  ResponseSender
}

func (s snapshotSender) SendSnapshot(v any) {
	snapshot, ok := v.(simulation.Snapshot)
	if !ok {
		return
	}

	s.respond.Send(Msg{
		Type:      MsgTypeSnapshot,
		Timestamp: time.Now(),
		ClientID:  s.clientID,
		Snapshot:  &snapshot,
	})
}
