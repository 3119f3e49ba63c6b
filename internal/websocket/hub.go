package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"pdfchat-be/internal/metrics"
	"pdfchat-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries emits between instances so room members connected elsewhere get them too.
const ClusterChannel = "room_events"

var (
	// ErrNotInitialized is returned by every operation on a nil hub.
	ErrNotInitialized = errors.New("websocket: hub not initialized")
	// ErrUnknownConnection is returned when joining a connection this instance does not hold.
	ErrUnknownConnection = errors.New("websocket: unknown connection")
)

const (
	targetRoom = "room"
	targetConn = "conn"
	targetAll  = "all"
)

type clusterMessage struct {
	Origin string          `json:"origin"`
	Target string          `json:"target"`
	Key    string          `json:"key,omitempty"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Hub tracks live connections and the document rooms they are in.
// Rooms exist only while they have members.
type Hub struct {
	// Registered clients: connection id -> client
	clients map[string]*Client

	// Room membership: room -> connection id -> client
	rooms map[string]map[string]*Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance fan-out, nil on a single instance
	rdb        *redis.Client
	instanceID string

	// Dedicated Logger
	logger  logger.ILogger
	metrics *metrics.Metrics
}

func NewHub(rdb *redis.Client, instanceID string, log logger.ILogger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		rdb:        rdb,
		instanceID: instanceID,
		logger:     log,
		metrics:    m,
	}
}

func (h *Hub) Register(client *Client) error {
	if h == nil {
		return ErrNotInitialized
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	conns := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetConnections(conns)
	h.logger.Info("Hub", "Client registered", map[string]interface{}{"conn_id": client.ID})
	return nil
}

// Unregister drops the client from every room and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(client *Client) error {
	if h == nil {
		return ErrNotInitialized
	}
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return nil
	}
	delete(h.clients, client.ID)
	for room, members := range h.rooms {
		if _, ok := members[client.ID]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.closeSend()
	conns, rooms := len(h.clients), len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetConnections(conns)
	h.metrics.SetRooms(rooms)
	h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"conn_id": client.ID})
	return nil
}

func (h *Hub) Join(connID, room string) error {
	if h == nil {
		return ErrNotInitialized
	}
	h.mu.Lock()
	client, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return ErrUnknownConnection
	}
	members, exists := h.rooms[room]
	if !exists {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = client
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetRooms(rooms)
	h.logger.Info("Hub", "Client joined room", map[string]interface{}{"conn_id": connID, "room": room})
	return nil
}

// Leave is a no-op for connections that are not in the room.
func (h *Hub) Leave(connID, room string) error {
	if h == nil {
		return ErrNotInitialized
	}
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	h.metrics.SetRooms(rooms)
	h.logger.Info("Hub", "Client left room", map[string]interface{}{"conn_id": connID, "room": room})
	return nil
}

// Members returns the local connection ids in a room, sorted.
func (h *Hub) Members(room string) ([]string, error) {
	if h == nil {
		return nil, ErrNotInitialized
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (h *Hub) RoomCount() (int, error) {
	if h == nil {
		return 0, ErrNotInitialized
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms), nil
}

func (h *Hub) EmitToRoom(room, event string, payload interface{}) error {
	return h.BroadcastToRoomExcept(room, event, payload, "")
}

func (h *Hub) BroadcastToRoomExcept(room, event string, payload interface{}, senderID string) error {
	if h == nil {
		return ErrNotInitialized
	}
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	h.deliverToRoom(room, frame, senderID)
	return h.publish(clusterMessage{Target: targetRoom, Key: room, Except: senderID, Frame: frame})
}

func (h *Hub) EmitToConnection(connID, event string, payload interface{}) error {
	if h == nil {
		return ErrNotInitialized
	}
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	if h.deliverToConn(connID, frame) {
		return nil
	}
	// Not ours; the instance holding it will deliver.
	return h.publish(clusterMessage{Target: targetConn, Key: connID, Frame: frame})
}

func (h *Hub) EmitToAll(event string, payload interface{}) error {
	return h.BroadcastExcept(event, payload, "")
}

// BroadcastExcept sends to every connection except senderID. An empty senderID excludes nobody.
func (h *Hub) BroadcastExcept(event string, payload interface{}, senderID string) error {
	if h == nil {
		return ErrNotInitialized
	}
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	h.deliverToAll(frame, senderID)
	return h.publish(clusterMessage{Target: targetAll, Except: senderID, Frame: frame})
}

// Run replays emits from other instances to local connections until ctx is done.
// Without Redis it returns immediately.
func (h *Hub) Run(ctx context.Context) error {
	if h == nil {
		return ErrNotInitialized
	}
	if h.rdb == nil {
		return nil
	}

	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	h.logger.Info("Hub", "Subscribed to cluster channel", map[string]interface{}{"instance_id": h.instanceID})

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.handleClusterMessage(msg.Payload)
		}
	}
}

func (h *Hub) handleClusterMessage(raw string) {
	var m clusterMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		h.logger.Warn("Hub", "Malformed cluster message", map[string]interface{}{"error": err.Error()})
		return
	}
	if m.Origin == h.instanceID {
		return
	}

	switch m.Target {
	case targetRoom:
		h.deliverToRoom(m.Key, m.Frame, m.Except)
	case targetConn:
		h.deliverToConn(m.Key, m.Frame)
	case targetAll:
		h.deliverToAll(m.Frame, m.Except)
	}
}

func (h *Hub) publish(m clusterMessage) error {
	if h.rdb == nil {
		return nil
	}
	m.Origin = h.instanceID
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(context.Background(), ClusterChannel, data).Err(); err != nil {
		// Local delivery already happened; remote members miss this frame.
		h.logger.Warn("Hub", "Cluster publish failed", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func (h *Hub) deliverToRoom(room string, frame []byte, except string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.rooms[room] {
		if id != except {
			h.enqueue(client, frame)
		}
	}
}

func (h *Hub) deliverToConn(connID string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connID]
	if ok {
		h.enqueue(client, frame)
	}
	return ok
}

func (h *Hub) deliverToAll(frame []byte, except string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.clients {
		if id != except {
			h.enqueue(client, frame)
		}
	}
}

// enqueue must run under h.mu; Unregister closes Send under the write lock.
func (h *Hub) enqueue(client *Client, frame []byte) {
	select {
	case client.Send <- frame:
	default:
		h.metrics.IncDroppedFrame()
		h.logger.Warn("Hub", "Client Send buffer full, dropping frame", map[string]interface{}{"conn_id": client.ID})
	}
}
