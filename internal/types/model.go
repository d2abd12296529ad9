package types

import (
	"fmt"
	"slices"
)

type SteamID uint64
type GroupID uint64
type LobbyID uint64
type MatchID uint64
type SessionID uint64

func (id GroupID) Hex() string { return fmt.Sprintf("%016X", uint64(id)) }

type WizardStep string

const (
	StepInvalid                  WizardStep = ""
	StepMvMPlayForBraggingRights WizardStep = "mvm_play_for_bragging_rights"
	StepMvMChallenge             WizardStep = "mvm_challenge"
	StepLadder                   WizardStep = "ladder"
	StepCasual                   WizardStep = "casual"
	StepSearching                WizardStep = "searching"
)

type Mode string

const (
	ModeInvalid Mode = ""
	ModeMvM     Mode = "mvm"
	ModeLadder  Mode = "ladder"
	ModeCasual  Mode = "casual"
)

// WizardStep returns the first step of the setup flow for a mode.
func (m Mode) WizardStep() WizardStep {
	switch m {
	case ModeCasual:
		return StepCasual
	case ModeLadder:
		return StepLadder
	case ModeMvM:
		return StepMvMPlayForBraggingRights
	default:
		return StepInvalid
	}
}

type PartyState string

const (
	PartyStateUI                  PartyState = "ui"
	PartyStateFindingMatch        PartyState = "finding_match"
	PartyStateAwaitingReservation PartyState = "awaiting_reservation_confirmation"
	PartyStateInMatch             PartyState = "in_match"
)

type LobbyState string

const (
	LobbyStateUnknown     LobbyState = "unknown"
	LobbyStateServerSetup LobbyState = "server_setup"
	LobbyStateRun         LobbyState = "run"
)

type MatchGroup string

const (
	MatchGroupInvalid     MatchGroup = ""
	MatchGroupMvMPractice MatchGroup = "mvm_practice"
	MatchGroupMvMMannUp   MatchGroup = "mvm_mannup"
	MatchGroupLadder6v6   MatchGroup = "ladder_6v6"
	MatchGroupLadder9v9   MatchGroup = "ladder_9v9"
	MatchGroupLadder12v12 MatchGroup = "ladder_12v12"
	MatchGroupCasual12v12 MatchGroup = "casual_12v12"
)

// NoPenalty reports whether leaving a match in this group never counts as an abandon.
func (g MatchGroup) NoPenalty() bool {
	return g == MatchGroupMvMPractice
}

type Member struct {
	ID                SteamID `json:"id"`
	SquadSurplus      bool    `json:"squad_surplus"`
	CompetitiveAccess bool    `json:"competitive_access"`
	CompletedMissions uint64  `json:"completed_missions"`
}

type SearchCriteria struct {
	Mode                  Mode       `json:"mode" yaml:"mode"`
	LateJoinOK            bool       `json:"late_join_ok" yaml:"late_join_ok"`
	QuickplayCategory     string     `json:"quickplay_category,omitempty" yaml:"quickplay_category,omitempty"`
	CasualMaps            []string   `json:"casual_maps" yaml:"casual_maps"`
	Missions              []string   `json:"missions,omitempty" yaml:"missions,omitempty"`
	PlayForBraggingRights bool       `json:"play_for_bragging_rights" yaml:"play_for_bragging_rights"`
	LadderGroup           MatchGroup `json:"ladder_group,omitempty" yaml:"ladder_group,omitempty"`
	CustomPingTolerance   uint32     `json:"custom_ping_tolerance" yaml:"custom_ping_tolerance"`
}

func (c SearchCriteria) Clone() SearchCriteria {
	c.CasualMaps = slices.Clone(c.CasualMaps)
	c.Missions = slices.Clone(c.Missions)
	return c
}

func (c SearchCriteria) Equal(o SearchCriteria) bool {
	return c.Mode == o.Mode &&
		c.LateJoinOK == o.LateJoinOK &&
		c.QuickplayCategory == o.QuickplayCategory &&
		slices.Equal(c.CasualMaps, o.CasualMaps) &&
		slices.Equal(c.Missions, o.Missions) &&
		c.PlayForBraggingRights == o.PlayForBraggingRights &&
		c.LadderGroup == o.LadderGroup &&
		c.CustomPingTolerance == o.CustomPingTolerance
}

func (c SearchCriteria) MapSelected(name string) bool {
	_, ok := slices.BinarySearch(c.CasualMaps, name)
	return ok
}

// SetMapSelected keeps CasualMaps sorted and free of duplicates.
func (c *SearchCriteria) SetMapSelected(name string, selected bool) {
	c.CasualMaps = setMember(c.CasualMaps, name, selected)
}

func (c SearchCriteria) MissionSelected(name string) bool {
	_, ok := slices.BinarySearch(c.Missions, name)
	return ok
}

func (c *SearchCriteria) SetMissionSelected(name string, selected bool) {
	c.Missions = setMember(c.Missions, name, selected)
}

func setMember(set []string, name string, selected bool) []string {
	i, found := slices.BinarySearch(set, name)
	switch {
	case selected && !found:
		return slices.Insert(set, i, name)
	case !selected && found:
		return slices.Delete(set, i, i+1)
	}
	return set
}

type Kind string

const (
	KindParty Kind = "party"
	KindLobby Kind = "lobby"
)

// Object is the closed set of replicated objects the client cares about.
type Object interface {
	Kind() Kind
	ObjectID() uint64
	isObject()
}

type Party struct {
	GroupID    GroupID        `json:"group_id"`
	Members    []Member       `json:"members"`
	LeaderID   SteamID        `json:"leader_id"`
	State      PartyState     `json:"state"`
	WizardStep WizardStep     `json:"wizard_step"`
	MatchGroup MatchGroup     `json:"match_group"`
	Criteria   SearchCriteria `json:"criteria"`
	SessionID  SessionID      `json:"session_id"`

	// Offline is set locally when an update request timed out.
	Offline bool `json:"offline"`
}

func (Party) Kind() Kind         { return KindParty }
func (p Party) ObjectID() uint64 { return uint64(p.GroupID) }
func (Party) isObject()          {}

func (p Party) Clone() Party {
	p.Members = slices.Clone(p.Members)
	p.Criteria = p.Criteria.Clone()
	return p
}

func (p Party) IsLeader(id SteamID) bool { return p.LeaderID == id }

// InSetup reports whether the party is still choosing or searching rather than playing.
func (p Party) InSetup() bool {
	return p.State == PartyStateUI || p.State == PartyStateFindingMatch
}

type Lobby struct {
	ID          LobbyID    `json:"id"`
	State       LobbyState `json:"state"`
	ServerID    SteamID    `json:"server_id"`
	ConnectAddr string     `json:"connect_addr"`
	MatchID     MatchID    `json:"match_id"`
	MatchGroup  MatchGroup `json:"match_group"`
}

func (Lobby) Kind() Kind         { return KindLobby }
func (l Lobby) ObjectID() uint64 { return uint64(l.ID) }
func (Lobby) isObject()          {}

type Result string

const (
	ResultOK                     Result = "ok"
	ResultDuplicate              Result = "duplicate"
	ResultInvalidProtocolVersion Result = "invalid_protocol_version"
	ResultDenied                 Result = "denied"
	ResultFail                   Result = "fail"
)

type Reply struct {
	Result Result
	// Step is the wizard step the backend committed, if the request touched the party.
	Step WizardStep
}

// Request is the closed set of requests the client sends to the backend.
type Request interface{ isRequest() }

type PartyUpdate struct {
	Step      WizardStep      // StepInvalid when the update carries no step
	Criteria  *SearchCriteria // nil when criteria are untouched
	SessionID *SessionID
}

type ExitMatchmaking struct {
	Abandon bool
}

type AcceptInvite struct {
	GroupID       GroupID
	SessionID     SessionID
	ClientVersion uint32
}

type PingEntry struct {
	POP    string
	RTTMs  uint32
	Status string
}

type PingUpdate struct {
	Entries []PingEntry
}

func (PartyUpdate) isRequest()     {}
func (ExitMatchmaking) isRequest() {}
func (AcceptInvite) isRequest()    {}
func (PingUpdate) isRequest()      {}

// UserMessage is surfaced to the player. Fatal messages end the matchmaking attempt.
type UserMessage struct {
	Fatal bool
	Text  string
}
