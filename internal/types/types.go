package types

// ClientMessage is what the game UI sends over its websocket.
type ClientMessage struct {
	Type      string `json:"type"`
	Mode      string `json:"mode,omitempty"`
	Step      string `json:"step,omitempty"`
	Map       string `json:"map,omitempty"`
	Mission   string `json:"mission,omitempty"`
	Group     string `json:"group,omitempty"`
	Category  string `json:"category,omitempty"`
	Selected  bool   `json:"selected,omitempty"`
	Enabled   bool   `json:"enabled,omitempty"`
	Value     uint32 `json:"value,omitempty"`
	Abandon   bool   `json:"abandon,omitempty"`
	SessionID uint64 `json:"session_id,omitempty"`
	GroupID   uint64 `json:"group_id,omitempty"`
	ServerID  uint64 `json:"server_id,omitempty"`
	Source    string `json:"source,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Text      string `json:"text,omitempty"`
	Ended     bool   `json:"ended,omitempty"`
	Safe      bool   `json:"safe,omitempty"`
}

type ServerMessage struct {
	Type    string `json:"type"` // "State" | "UserMessage" | "PartyChat" | "Disconnect" | "Error"
	Version int    `json:"version,omitempty"`
	State   any    `json:"state,omitempty"`
	Text    string `json:"text,omitempty"`
	Fatal   bool   `json:"fatal,omitempty"`
	From    uint64 `json:"from,omitempty"`
	Error   string `json:"error,omitempty"`
}
