package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
	"github.com/RoseWrightdev/sfu-go/internal/peer"
	"github.com/RoseWrightdev/sfu-go/internal/session"
	"github.com/RoseWrightdev/sfu-go/internal/sfu"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Bridge connects a Hub's WebSocket clients to the SFU service façade:
// inbound messages become HandleSignal calls, and a peer's outbound
// event channel is pumped back out as messages.
type Bridge struct {
	hub      *Hub
	service  *sfu.Service
	pubsub   *PubSub
	sessions *session.Manager
	opts     ClientOptions
	logger   *zap.Logger
}

// NewBridge builds a bridge. pubsub may be nil to disable cross-instance
// relay; sessions may be nil to disable suspend/resume persistence
// (every connect then behaves as a fresh session).
func NewBridge(hub *Hub, service *sfu.Service, pubsub *PubSub, sessions *session.Manager, opts ClientOptions, logger *zap.Logger) *Bridge {
	return &Bridge{hub: hub, service: service, pubsub: pubsub, sessions: sessions, opts: opts, logger: logger}
}

// resolveSession resumes a suspended session by resume token when one is
// given and it names this room/user, otherwise creates the session (or
// reactivates one already suspended for this room/user). Returns nil
// when session persistence is disabled.
func (b *Bridge) resolveSession(room id.RoomID, user id.UserID, token string) *session.Session {
	if b.sessions == nil {
		return nil
	}

	if token != "" {
		existing, err := b.sessions.GetByToken(token)
		if err == nil && existing != nil && existing.Key.Room == room && existing.Key.User == user {
			if resumed, err := b.sessions.Resume(existing.ID, token); err == nil {
				return resumed
			}
		}
	}

	sess, err := b.sessions.Create(room, user, user.String())
	if err != nil {
		b.logger.Warn("session create failed", zap.String("room", room.String()), zap.String("user", user.String()), zap.Error(err))
		return nil
	}
	return sess
}

// ServeHTTP upgrades the connection, creates an SFU session, and wires
// the client's read/write pumps and the peer's event pump.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := id.RoomID(r.URL.Query().Get("room"))
	user := id.UserID(r.URL.Query().Get("user"))
	if room == "" || user == "" {
		http.Error(w, "room and user query parameters are required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	b.hub.DisconnectUser(room, user, "")

	sess := b.resolveSession(room, user, r.URL.Query().Get("token"))

	offerSDP, err := b.service.CreateSession(r.Context(), room, user)
	if err != nil {
		b.logger.Warn("create session failed", zap.String("room", room.String()), zap.String("user", user.String()), zap.Error(err))
		conn.Close()
		return
	}

	clientID := room.String() + "/" + user.String()
	client := NewClient(clientID, room, user, conn, b.opts, b.logger)
	client.OnMessage = func(c *Client, msg Message) { b.handleMessage(c, msg, sess) }
	client.OnDisconnect = func(c *Client) {
		b.hub.Unregister(c)
		if err := b.service.DeleteSession(room, user); err != nil && !errors.Is(err, sfu.ErrNotFound) {
			b.logger.Warn("delete session failed", zap.String("room", room.String()), zap.String("user", user.String()), zap.Error(err))
		}
		// The transport always tears down on disconnect; the session
		// row survives as suspended so a reconnect within its TTL
		// resumes in place instead of starting over (§C.1).
		if sess != nil {
			if err := b.sessions.Suspend(sess.ID); err != nil {
				b.logger.Warn("suspend session failed", zap.String("session_id", sess.ID), zap.Error(err))
			}
		}
	}

	b.hub.Register(client)

	if b.pubsub != nil {
		b.pubsub.SubscribeRoom(room)
	}

	events, err := b.service.ListenEvents(room, user)
	if err != nil {
		b.logger.Warn("listen events failed", zap.Error(err))
		client.Conn.Close()
		return
	}
	go b.pumpEvents(client, events, sess)

	go client.WritePump()

	var sessionID, token string
	if sess != nil {
		sessionID, token = sess.ID, sess.Token
	}
	payload, _ := json.Marshal(SdpPayload{SDP: offerSDP, SessionID: sessionID, Token: token})
	client.SendMessage(Message{Type: MessageTypeOffer, Payload: payload})

	client.ReadPump()
}

func (b *Bridge) pumpEvents(c *Client, events <-chan peer.Event, sess *session.Session) {
	var subs []id.StreamID
	for evt := range events {
		msg, ok := b.translateEvent(evt)
		if !ok {
			continue
		}
		c.SendMessage(msg)

		if sess != nil && evt.Kind == peer.EventTrackAdded {
			subs = append(subs, evt.StreamID)
			if err := b.sessions.UpdateSubscriptions(sess.ID, subs); err != nil {
				b.logger.Warn("update subscriptions failed", zap.String("session_id", sess.ID), zap.Error(err))
			}
		}

		if b.pubsub != nil {
			if err := b.pubsub.Publish(c.Room, "", msg); err != nil {
				b.logger.Warn("failed to relay event", zap.Error(err))
			}
		}
	}
}

func (b *Bridge) translateEvent(evt peer.Event) (Message, bool) {
	switch evt.Kind {
	case peer.EventTrackAdded:
		payload, _ := json.Marshal(TrackAddedPayload{
			UserID:    evt.UserID.String(),
			StreamID:  evt.StreamID.String(),
			TrackKind: evt.TrackKind,
		})
		return Message{Type: MessageTypeTrackAdded, Payload: payload}, true

	case peer.EventRenegotiateSdpOffer:
		payload, _ := json.Marshal(SdpPayload{SDP: evt.SDP})
		return Message{Type: MessageTypeOffer, Payload: payload}, true

	case peer.EventSdpAnswer:
		payload, _ := json.Marshal(SdpPayload{SDP: evt.SDP})
		return Message{Type: MessageTypeAnswer, Payload: payload}, true

	case peer.EventIceCandidate:
		payload, _ := json.Marshal(IceCandidatePayload{Candidate: json.RawMessage(evt.CandidateJSON)})
		return Message{Type: MessageTypeIceCandidate, Payload: payload}, true

	case peer.EventCaption:
		payload, _ := json.Marshal(CaptionPayload{Text: evt.Text, IsFinal: evt.IsFinal, Confidence: evt.Confidence})
		return Message{Type: MessageTypeCaption, Payload: payload}, true

	default:
		return Message{}, false
	}
}

func (b *Bridge) handleMessage(c *Client, msg Message, sess *session.Session) {
	switch msg.Type {
	case MessageTypeAnswer:
		var p SdpPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.SendError("malformed answer payload")
			return
		}
		b.dispatch(c, sfu.Signal{Kind: sfu.SignalSdpAnswer, SDP: p.SDP})

	case MessageTypeOffer:
		var p SdpPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.SendError("malformed offer payload")
			return
		}
		b.dispatch(c, sfu.Signal{Kind: sfu.SignalSdpOffer, SDP: p.SDP})

	case MessageTypeIceCandidate:
		var p IceCandidatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.SendError("malformed ice candidate payload")
			return
		}
		b.dispatch(c, sfu.Signal{Kind: sfu.SignalIceCandidate, CandidateJSON: string(p.Candidate)})

	case MessageTypeLeave:
		if err := b.service.DeleteSession(c.Room, c.User); err != nil && !errors.Is(err, sfu.ErrNotFound) {
			b.logger.Warn("delete session on leave failed", zap.Error(err))
		}
		// An explicit leave is immediate, permanent teardown — unlike a
		// bare disconnect, it does not start a resume grace window.
		if sess != nil {
			if err := b.sessions.Delete(sess.ID); err != nil {
				b.logger.Warn("delete persisted session on leave failed", zap.String("session_id", sess.ID), zap.Error(err))
			}
		}

	case MessageTypePong:
		// liveness only, no action required.

	default:
		c.SendError("unknown message type")
	}
}

func (b *Bridge) dispatch(c *Client, sig sfu.Signal) {
	if err := b.service.HandleSignal(context.Background(), c.Room, c.User, sig); err != nil {
		c.SendError(err.Error())
	}
}
