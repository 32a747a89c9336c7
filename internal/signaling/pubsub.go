package signaling

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
)

// roomChannelPrefix namespaces a room's Redis pub/sub channel.
const roomChannelPrefix = "sfu:room-events:"

// relayedMessage wraps an outbound Message with the publishing
// instance's identity, so a process ignores its own echoes.
type relayedMessage struct {
	InstanceID string  `json:"instanceId"`
	Room       string  `json:"room"`
	User       string  `json:"user"`
	Message    Message `json:"message"`
}

// PubSub relays hub messages across SFU process instances over Redis,
// so a room whose members land on different processes still behaves
// as one room.
type PubSub struct {
	redis      *redis.Client
	hub        *Hub
	instanceID string
	logger     *zap.Logger

	mu   sync.Mutex
	subs map[id.RoomID]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPubSub builds a relay bound to hub. instanceID defaults to
// INSTANCE_ID, falling back to the OS hostname.
func NewPubSub(redisClient *redis.Client, hub *Hub, logger *zap.Logger) *PubSub {
	ctx, cancel := context.WithCancel(context.Background())

	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		if hostname, err := os.Hostname(); err == nil {
			instanceID = hostname
		} else {
			instanceID = "unknown"
		}
	}

	return &PubSub{
		redis:      redisClient,
		hub:        hub,
		instanceID: instanceID,
		logger:     logger,
		subs:       make(map[id.RoomID]*redis.PubSub),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func roomChannel(room id.RoomID) string {
	return roomChannelPrefix + room.String()
}

// Publish broadcasts msg to every other instance subscribed to room.
// to, if non-empty, restricts delivery to one user on arrival.
func (p *PubSub) Publish(room id.RoomID, to id.UserID, msg Message) error {
	data, err := json.Marshal(relayedMessage{
		InstanceID: p.instanceID,
		Room:       room.String(),
		User:       to.String(),
		Message:    msg,
	})
	if err != nil {
		return err
	}
	return p.redis.Publish(p.ctx, roomChannel(room), data).Err()
}

// SubscribeRoom starts relaying messages published to room by other
// instances into the local hub. A no-op if already subscribed.
func (p *PubSub) SubscribeRoom(room id.RoomID) {
	p.mu.Lock()
	if _, exists := p.subs[room]; exists {
		p.mu.Unlock()
		return
	}
	sub := p.redis.Subscribe(p.ctx, roomChannel(room))
	p.subs[room] = sub
	p.mu.Unlock()

	go p.listen(room, sub)
}

// UnsubscribeRoom stops relaying room's channel.
func (p *PubSub) UnsubscribeRoom(room id.RoomID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.subs[room]
	if !ok {
		return
	}
	if err := sub.Close(); err != nil {
		p.logger.Warn("error closing pubsub subscription", zap.String("room", room.String()), zap.Error(err))
	}
	delete(p.subs, room)
}

func (p *PubSub) listen(room id.RoomID, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-p.ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			p.deliver(room, raw)
		}
	}
}

func (p *PubSub) deliver(room id.RoomID, raw *redis.Message) {
	var relayed relayedMessage
	if err := json.Unmarshal([]byte(raw.Payload), &relayed); err != nil {
		p.logger.Warn("failed to unmarshal relayed message", zap.Error(err))
		return
	}
	if relayed.InstanceID == p.instanceID {
		return
	}

	for _, c := range p.hub.ClientsInRoom(room) {
		if relayed.User != "" && c.User.String() != relayed.User {
			continue
		}
		c.SendMessage(relayed.Message)
	}
}

// Ping checks Redis reachability for the health endpoint.
func (p *PubSub) Ping() error {
	ctx, cancel := context.WithTimeout(p.ctx, 3*time.Second)
	defer cancel()
	return p.redis.Ping(ctx).Err()
}

// Close stops every subscription and the background context.
func (p *PubSub) Close() error {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	for room, sub := range p.subs {
		if err := sub.Close(); err != nil {
			p.logger.Warn("error closing pubsub subscription during shutdown", zap.String("room", room.String()), zap.Error(err))
		}
	}
	p.subs = make(map[id.RoomID]*redis.PubSub)
	return nil
}
