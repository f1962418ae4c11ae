package dto

// OnlineCount is pushed to admin websocket subscribers.
type OnlineCount struct {
	Online int    `json:"online"`
	Page   string `json:"page"`
}
