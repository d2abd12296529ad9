// Package types is the wire protocol spoken with the matchmaking backend.
// Every websocket message is one CBOR-encoded Frame; the body is decoded
// according to Type and Method.
package types

import "fmt"

type FrameType string

const (
	FrameRequest     FrameType = "request"      // client -> backend, answered by a reply with the same ID
	FrameReply       FrameType = "reply"        // backend -> client
	FrameObject      FrameType = "object"       // backend -> client replication push
	FrameSessionCall FrameType = "session_call" // client -> backend peer session operation
	FrameSession     FrameType = "session"      // backend -> client peer session notification
)

// Request methods.
const (
	MethodPartyUpdate   = "party.update"
	MethodPartyExit     = "party.exit"
	MethodAcceptInvite  = "party.accept_invite"
	MethodPingUpdate    = "ping.update"
	MethodSessionCreate = "session.create"
	MethodSessionJoin   = "session.join"
	MethodSessionLeave  = "session.leave"
	MethodSessionRead   = "session.request_metadata"
	MethodSessionWrite  = "session.set_metadata"
	MethodSessionSend   = "session.send"
)

type Frame struct {
	Type   FrameType  `cbor:"type"`
	ID     string     `cbor:"id,omitempty"`
	Method string     `cbor:"method,omitempty"`
	Body   RawMessage `cbor:"body,omitempty"`
}

func NewFrame(typ FrameType, id, method string, body any) (Frame, error) {
	f := Frame{Type: typ, ID: id, Method: method}
	if body == nil {
		return f, nil
	}
	raw, err := Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s body: %w", method, err)
	}
	f.Body = raw
	return f, nil
}

// Decode unmarshals the frame body into v.
func (f Frame) Decode(v any) error {
	if len(f.Body) == 0 {
		return fmt.Errorf("%s frame %q has no body", f.Type, f.ID)
	}
	return Unmarshal(f.Body, v)
}

type Criteria struct {
	Mode                  string   `cbor:"mode"`
	LateJoinOK            bool     `cbor:"late_join_ok"`
	QuickplayCategory     string   `cbor:"quickplay_category,omitempty"`
	CasualMaps            []string `cbor:"casual_maps,omitempty"`
	Missions              []string `cbor:"missions,omitempty"`
	PlayForBraggingRights bool     `cbor:"play_for_bragging_rights"`
	LadderGroup           string   `cbor:"ladder_group,omitempty"`
	CustomPingTolerance   uint32   `cbor:"custom_ping_tolerance"`
}

type PartyUpdate struct {
	Step      string    `cbor:"step,omitempty"`
	Criteria  *Criteria `cbor:"criteria,omitempty"`
	SessionID *uint64   `cbor:"session_id,omitempty"`
}

type ExitMatchmaking struct {
	Abandon bool `cbor:"abandon"`
}

type AcceptInvite struct {
	GroupID       uint64 `cbor:"group_id"`
	SessionID     uint64 `cbor:"session_id"`
	ClientVersion uint32 `cbor:"client_version"`
}

type PingEntry struct {
	POP    string `cbor:"pop"`
	RTTMs  uint32 `cbor:"rtt_ms"`
	Status string `cbor:"status"`
}

type PingUpdate struct {
	Entries []PingEntry `cbor:"entries"`
}

type Reply struct {
	Result string `cbor:"result"`
	Step   string `cbor:"step,omitempty"`
}

// Object kinds the client understands. Anything else is dropped.
const (
	KindParty = "party"
	KindLobby = "lobby"
)

type Member struct {
	ID                uint64 `cbor:"id"`
	SquadSurplus      bool   `cbor:"squad_surplus"`
	CompetitiveAccess bool   `cbor:"competitive_access"`
	CompletedMissions uint64 `cbor:"completed_missions"`
}

type Party struct {
	GroupID    uint64   `cbor:"group_id"`
	Members    []Member `cbor:"members"`
	LeaderID   uint64   `cbor:"leader_id"`
	State      string   `cbor:"state"`
	WizardStep string   `cbor:"wizard_step"`
	MatchGroup string   `cbor:"match_group"`
	Criteria   Criteria `cbor:"criteria"`
	SessionID  uint64   `cbor:"session_id"`
}

type Lobby struct {
	ID          uint64 `cbor:"id"`
	State       string `cbor:"state"`
	ServerID    uint64 `cbor:"server_id"`
	ConnectAddr string `cbor:"connect_addr"`
	MatchID     uint64 `cbor:"match_id"`
	MatchGroup  string `cbor:"match_group"`
}

// Object is a replication push. Exactly one of Party and Lobby is set,
// matching Kind.
type Object struct {
	Event string `cbor:"event"` // created | updated | destroyed
	Owner uint64 `cbor:"owner"`
	Kind  string `cbor:"kind"`
	Party *Party `cbor:"party,omitempty"`
	Lobby *Lobby `cbor:"lobby,omitempty"`
}

type SessionCall struct {
	SessionID uint64 `cbor:"session_id,omitempty"`
	Key       string `cbor:"key,omitempty"`
	Value     string `cbor:"value,omitempty"`
	Payload   []byte `cbor:"payload,omitempty"`
}

// Session notification events.
const (
	SessionCreated       = "created"
	SessionEntered       = "entered"
	SessionData          = "data"
	SessionMembership    = "membership"
	SessionChat          = "chat"
	SessionJoinRequested = "join_requested"
)

type SessionEvent struct {
	Event     string            `cbor:"event"`
	SessionID uint64            `cbor:"session_id"`
	OK        bool              `cbor:"ok,omitempty"`
	Member    uint64            `cbor:"member,omitempty"`
	Joined    bool              `cbor:"joined,omitempty"`
	Payload   []byte            `cbor:"payload,omitempty"`
	Metadata  map[string]string `cbor:"metadata,omitempty"`
}
