package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	BridgeChannel = "gigflow:realtime"
	presenceTTL   = 90 * time.Second
)

// NewRedis creates a new Redis client
func NewRedis(addr, password string, db int) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	log.Printf("[Redis] client created (addr: %s)", addr)
	return rdb
}

type envelope struct {
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// Bridge fans frames out to every API instance through redis pub/sub. Deliver only
// publishes; each instance, the sender included, delivers from its own subscription.
type Bridge struct {
	rdb *redis.Client
	hub *Hub
}

func NewBridge(rdb *redis.Client, hub *Hub) *Bridge {
	return &Bridge{rdb: rdb, hub: hub}
}

func (b *Bridge) Deliver(ctx context.Context, room string, frame []byte) error {
	payload, err := json.Marshal(envelope{Room: room, Frame: frame})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, BridgeChannel, payload).Err()
}

// Run relays published frames into the local hub until ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, BridgeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[Bridge] bad payload: %v", err)
				continue
			}
			b.hub.DeliverLocal(env.Room, env.Frame)
		}
	}
}

// Presence tracks which users hold a live connection on any instance. The keys
// expire on their own, so a crashed instance cannot leave users online forever.
type Presence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPresence(rdb *redis.Client) *Presence {
	return &Presence{rdb: rdb, ttl: presenceTTL}
}

func presenceKey(userID uuid.UUID) string { return "presence:" + userID.String() }

// Touch marks the user online, or extends the mark. Called on connect and on ping.
func (p *Presence) Touch(ctx context.Context, userID uuid.UUID) error {
	return p.rdb.Set(ctx, presenceKey(userID), time.Now().Unix(), p.ttl).Err()
}

func (p *Presence) Clear(ctx context.Context, userID uuid.UUID) error {
	return p.rdb.Del(ctx, presenceKey(userID)).Err()
}

func (p *Presence) Online(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := p.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
