package validation

// Sync directions accepted by the trigger API.
const (
	DirectionBoth     = "both"
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// SyncRequest is the optional payload for POST /sync.
type SyncRequest struct {
	Direction string `json:"direction" validate:"omitempty,oneof=both inbound outbound"`
}
