package service

// RoomBroker fans events out to connections grouped in per-document rooms.
// websocket.Hub is the production implementation.
type RoomBroker interface {
	Join(connID, room string) error
	Leave(connID, room string) error
	EmitToRoom(room, event string, payload interface{}) error
	EmitToConnection(connID, event string, payload interface{}) error
	BroadcastExcept(event string, payload interface{}, senderID string) error
	BroadcastToRoomExcept(room, event string, payload interface{}, senderID string) error
}
