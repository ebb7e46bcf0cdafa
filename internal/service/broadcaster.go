package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToResponseSet(responseSetID string, msgType string, payload interface{})
	DisconnectResponseSet(responseSetID string)
}

// MsgScreenChanged is pushed to subscribers after every accepted write
const MsgScreenChanged = "screen_changed"

// ScreenChanged is the payload of a screen_changed message
type ScreenChanged struct {
	ResponseSetID string `json:"response_set_id"`
	ScreenKey     string `json:"screen_key"`
	ETag          string `json:"etag"`
}
