package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/sfu-go/internal/id"
)

// MediaState mirrors the publisher-side mic/camera/screen-share toggles
// carried across a suspend/resume cycle.
type MediaState struct {
	MicEnabled    bool `json:"micEnabled"`
	CameraEnabled bool `json:"cameraEnabled"`
	ScreenEnabled bool `json:"screenEnabled"`
}

// SessionData is the durable, wire-serializable projection of a peer
// session: everything needed to reconstruct subscriptions after a
// resume, without the live transport.
type SessionData struct {
	ID            string        `json:"id"`
	Key           id.SessionKey `json:"key"`
	Name          string        `json:"name"`
	Media         MediaState    `json:"media"`
	Subscriptions []id.StreamID `json:"subscriptions"`
	CreatedAt     time.Time     `json:"createdAt"`
	LastSeen      time.Time     `json:"lastSeen"`
	Suspended     bool          `json:"suspended"`
}

// Manager persists SessionData through a local in-process cache with
// Redis as the durable, TTL-bearing backing store. Reads prefer the
// local cache; writes go to both, the Redis half asynchronously.
type Manager struct {
	local *sync.Map // sessionID -> *SessionData
	redis *redis.Client

	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager dials Redis and verifies reachability with a ping.
func NewManager(addr, password string, db int, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())

	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Manager{
		local:  &sync.Map{},
		redis:  client,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// SetSession writes session through to the local cache immediately and
// to Redis asynchronously, matching the teacher's write-through
// pattern: callers never block on a Redis round-trip for the common
// path.
func (m *Manager) SetSession(session *SessionData) error {
	m.local.Store(session.ID, session)

	go func() {
		data, err := json.Marshal(session)
		if err != nil {
			m.logger.Error("failed to marshal session", zap.String("session_id", session.ID), zap.Error(err))
			return
		}

		if err := m.redis.Set(m.ctx, SessionKey(session.ID), data, SessionTTL*time.Second).Err(); err != nil {
			m.logger.Error("failed to persist session to redis", zap.String("session_id", session.ID), zap.Error(err))
			return
		}
		if err := m.redis.SAdd(m.ctx, RoomPeersKey(session.Key.Room.String()), session.ID).Err(); err != nil {
			m.logger.Error("failed to add session to room set", zap.String("session_id", session.ID), zap.Error(err))
		}
		m.redis.Expire(m.ctx, RoomPeersKey(session.Key.Room.String()), RoomTTL*time.Second)
	}()

	return nil
}

// GetSession returns a session by ID, preferring the local cache and
// falling back to Redis, re-populating the local cache on a Redis hit.
func (m *Manager) GetSession(sessionID string) (*SessionData, error) {
	if v, ok := m.local.Load(sessionID); ok {
		return v.(*SessionData), nil
	}

	raw, err := m.redis.Get(m.ctx, SessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var session SessionData
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	m.local.Store(session.ID, &session)
	return &session, nil
}

// SuspendSession marks a session suspended and re-persists it to Redis
// with SessionTTL, giving the holder that long to resume before the
// key expires.
func (m *Manager) SuspendSession(sessionID string) error {
	v, ok := m.local.Load(sessionID)
	if !ok {
		data, err := m.GetSession(sessionID)
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("session not found: %s", sessionID)
		}
		v = data
	}

	session := v.(*SessionData)
	session.Suspended = true
	session.LastSeen = time.Now()

	return m.SetSession(session)
}

// DeleteSession removes a session from both the local cache and Redis.
func (m *Manager) DeleteSession(sessionID string) error {
	v, ok := m.local.Load(sessionID)
	m.local.Delete(sessionID)

	if err := m.redis.Del(m.ctx, SessionKey(sessionID)).Err(); err != nil {
		m.logger.Error("failed to delete session from redis", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}

	if ok {
		session := v.(*SessionData)
		m.redis.SRem(m.ctx, RoomPeersKey(session.Key.Room.String()), sessionID)
	}

	return nil
}

// Recover scans Redis for every persisted session on startup, useful
// after a process restart to rebuild the local cache.
func (m *Manager) Recover() ([]*SessionData, error) {
	var sessions []*SessionData
	var cursor uint64

	for {
		keys, next, err := m.redis.Scan(m.ctx, cursor, KeyPrefixSession+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}

		for _, key := range keys {
			raw, err := m.redis.Get(m.ctx, key).Bytes()
			if err != nil {
				continue
			}
			var session SessionData
			if err := json.Unmarshal(raw, &session); err != nil {
				m.logger.Warn("skipping unparsable recovered session", zap.String("key", key), zap.Error(err))
				continue
			}
			m.local.Store(session.ID, &session)
			sessions = append(sessions, &session)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return sessions, nil
}

// Ping checks Redis reachability, used by the health endpoint.
func (m *Manager) Ping() error {
	return m.redis.Ping(m.ctx).Err()
}

// GetRedisClient exposes the underlying Redis client for components
// that need a lower-level handle onto the same connection pool, such
// as the signaling package's cross-instance pub/sub relay.
func (m *Manager) GetRedisClient() *redis.Client {
	return m.redis
}

// Close stops background persistence goroutines and closes the Redis
// client.
func (m *Manager) Close() error {
	m.cancel()
	return m.redis.Close()
}
