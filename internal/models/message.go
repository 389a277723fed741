package models

// SendRequest is an outbound send request coming from the CRM
type SendRequest struct {
	Key     string `json:"key"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendResult describes a message accepted by the messaging network
type SendResult struct {
	Phone     string `json:"phone"`
	MessageID string `json:"messageId,omitempty"`
}

// SenderCustomer is the role attached to every relayed inbound message
const SenderCustomer = "customer"

// RelayPayload is the body posted to the CRM webhook for each inbound message
type RelayPayload struct {
	SyncKey   string `json:"sync_key"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
}
