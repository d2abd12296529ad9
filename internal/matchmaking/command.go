package matchmaking

import (
	"errors"

	"github.com/DoyleJ11/matchmaking-client/internal/criteria"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdBeginMatchmaking         CommandType = "BeginMatchmaking"
	CmdEndMatchmaking           CommandType = "EndMatchmaking"
	CmdRequestWizardStep        CommandType = "RequestWizardStep"
	CmdSetMapSelected           CommandType = "SetMapSelected"
	CmdSetMissionSelected       CommandType = "SetMissionSelected"
	CmdSetLateJoin              CommandType = "SetLateJoin"
	CmdSetCustomPingTolerance   CommandType = "SetCustomPingTolerance"
	CmdSetPlayForBraggingRights CommandType = "SetPlayForBraggingRights"
	CmdSetLadderGroup           CommandType = "SetLadderGroup"
	CmdSetQuickplayCategory     CommandType = "SetQuickplayCategory"
	CmdFlushNow                 CommandType = "FlushNow"
	CmdAcceptInvite             CommandType = "AcceptInvite"
	CmdJoinParty                CommandType = "JoinParty"
	CmdSaveCasualCriteria       CommandType = "SaveCasualCriteria"
	CmdLoadCasualCriteria       CommandType = "LoadCasualCriteria"
	CmdRefreshPing              CommandType = "RefreshPing"
	CmdSendPartyChat            CommandType = "SendPartyChat"
	CmdBeginConnect             CommandType = "BeginConnect"
	CmdServerSpawn              CommandType = "ServerSpawn"
	CmdDisconnect               CommandType = "Disconnect"
)

// Command is a user or game action, as it arrives from a presentation layer.
type Command struct {
	Type      CommandType
	Mode      types.Mode
	Step      types.WizardStep
	Name      string
	On        bool
	Value     uint32
	Group     types.MatchGroup
	SessionID types.SessionID
	GroupID   types.GroupID
	ServerID  types.SteamID
	Source    string
	Reason    string
	Text      string
	Abandon   bool
}

func (o *Orchestrator) Execute(cmd Command) error {
	switch cmd.Type {
	case CmdBeginMatchmaking:
		return o.BeginMatchmaking(cmd.Mode)
	case CmdEndMatchmaking:
		o.EndMatchmaking(cmd.Abandon)
	case CmdRequestWizardStep:
		return o.RequestWizardStep(cmd.Step)
	case CmdSetMapSelected:
		return o.MutateCriteria(criteria.SetMapSelected(cmd.Name, cmd.On))
	case CmdSetMissionSelected:
		return o.MutateCriteria(criteria.SetMissionSelected(cmd.Name, cmd.On))
	case CmdSetLateJoin:
		return o.MutateCriteria(criteria.SetLateJoin(cmd.On))
	case CmdSetCustomPingTolerance:
		return o.MutateCriteria(criteria.SetCustomPingTolerance(cmd.Value))
	case CmdSetPlayForBraggingRights:
		return o.MutateCriteria(criteria.SetPlayForBraggingRights(cmd.On))
	case CmdSetLadderGroup:
		return o.MutateCriteria(criteria.SetLadderGroup(cmd.Group))
	case CmdSetQuickplayCategory:
		return o.MutateCriteria(criteria.SetQuickplayCategory(cmd.Name))
	case CmdFlushNow:
		o.FlushNow()
	case CmdAcceptInvite:
		o.AcceptFriendInvite(cmd.SessionID)
	case CmdJoinParty:
		o.LeaveGameAndPrepareToJoinParty(cmd.GroupID)
	case CmdSaveCasualCriteria:
		return o.SaveCasualCriteria()
	case CmdLoadCasualCriteria:
		return o.LoadCasualCriteria()
	case CmdRefreshPing:
		o.InvalidatePing()
	case CmdSendPartyChat:
		return o.SendPartyChat(cmd.Text)
	case CmdBeginConnect:
		o.OnBeginConnect(cmd.Source)
	case CmdServerSpawn:
		o.OnServerSpawn(cmd.ServerID)
	case CmdDisconnect:
		o.OnDisconnect(cmd.Reason)
	default:
		return ErrUnsupportedCommand
	}
	return nil
}
