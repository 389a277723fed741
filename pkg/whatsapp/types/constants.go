package types

const (
	APIBase          = "/api"
	EndpointSendText = "/sendText"
	EndpointSessions = "/sessions"
	EndpointAuthQR   = "/auth/qr"
	EndpointEvents   = "/ws"
)

// Session status values reported by GET /api/sessions/{name}
const (
	StatusStarting   = "STARTING"
	StatusScanQRCode = "SCAN_QR_CODE"
	StatusWorking    = "WORKING"
	StatusStopped    = "STOPPED"
	StatusFailed     = "FAILED"
)

// Event names on the websocket stream
const (
	EventMessage       = "message"
	EventSessionStatus = "session.status"
	EventStateChange   = "state.change"
)

// Message types as reported by the engine
const (
	MessageTypeChat     = "chat"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypePTT      = "ptt"
	MessageTypeDocument = "document"
	MessageTypeLocation = "location"
	MessageTypeSticker  = "sticker"
)

const (
	userChatSuffix   = "@c.us"
	groupSuffix      = "@g.us"
	broadcastSuffix  = "@broadcast"
	newsletterSuffix = "@newsletter"
)
