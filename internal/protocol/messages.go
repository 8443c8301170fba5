// Package protocol defines the WebSocket message types and structures used
// for communication between clients and the relay. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeIdentify        = "identify"
	TypeFindPartner     = "find_partner"
	TypeSignal          = "signal"
	TypeChatMessage     = "chat_message"
	TypeReport          = "report"
	TypeAdminScreenshot = "admin_screenshot"
	TypeSkip            = "skip"
	TypeAdminJoin       = "admin_join"
	TypePing            = "ping"
)

// Server -> Client message types.
const (
	TypeWaiting             = "waiting"
	TypePartnerFound        = "partner_found"
	TypePartnerDisconnected = "partner_disconnected"
	TypeBanned              = "banned"
	TypeCountryBlocked      = "country_blocked"
	TypeAdminMessage        = "admin_message"
	TypeAdminUpdate         = "admin_update"
	TypeError               = "error"
	TypePong                = "pong"
	// TypeSignal and TypeChatMessage are reused server-side for relayed
	// payloads.
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded later into the appropriate
// concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// IdentifyMsg is sent by the client to associate a device fingerprint with
// the current connection for ban enforcement.
type IdentifyMsg struct {
	Type        string `json:"type"`
	Fingerprint string `json:"fingerprint"`
}

// FindPartnerMsg is sent by the client to enter the matchmaking queue.
type FindPartnerMsg struct {
	Type string `json:"type"`
}

// SignalMsg carries an opaque WebRTC signaling payload addressed to the
// client's partner.
type SignalMsg struct {
	Type    string          `json:"type"`
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// ChatMsg is a text message addressed to the client's partner.
type ChatMsg struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// ReportMsg reports the client's current partner (or an explicit target) for
// abuse.
type ReportMsg struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
}

// AdminScreenshotMsg attaches screenshot evidence to a reported target. If
// PartnerID is empty the evidence is attributed to the sender's current
// partner.
type AdminScreenshotMsg struct {
	Type      string `json:"type"`
	Image     string `json:"image"`
	PartnerID string `json:"partnerId,omitempty"`
}

// SkipMsg abandons the current pairing and looks for a new partner.
type SkipMsg struct {
	Type string `json:"type"`
}

// AdminJoinMsg registers the connection as an admin observer. The shared
// admin credential must be supplied.
type AdminJoinMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// WaitingMsg confirms the client has entered the matchmaking queue.
type WaitingMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PartnerFoundMsg announces a new pairing. Exactly one of the two peers is
// the initiator and originates the WebRTC offer.
type PartnerFoundMsg struct {
	Type      string `json:"type"`
	PeerID    string `json:"peerId"`
	Initiator bool   `json:"initiator"`
}

// PartnerDisconnectedMsg tells the client its partner left the pairing.
type PartnerDisconnectedMsg struct {
	Type string `json:"type"`
}

// BannedMsg tells the client it has been banned and will be disconnected.
type BannedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CountryBlockedMsg rejects a connection from a blocked country. It is a
// distinct outcome from a ban and carries the blocked code.
type CountryBlockedMsg struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	CountryCode string `json:"countryCode"`
}

// ServerSignalMsg relays a signaling payload from the partner.
type ServerSignalMsg struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// ServerChatMsg relays chat text from the partner.
type ServerChatMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AdminMessageMsg is a broadcast announcement from the admin console.
type AdminMessageMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ErrorMsg communicates an error condition to the client.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeIdentify:
		var m IdentifyMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFindPartner:
		var m FindPartnerMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSignal:
		var m SignalMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminScreenshot:
		var m AdminScreenshotMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSkip:
		var m SkipMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminJoin:
		var m AdminJoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// is marshalled to JSON, the type field injected, and the final bytes
// returned.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
