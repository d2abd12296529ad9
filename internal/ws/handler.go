package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/matchmaking-client/internal/hub"
	"github.com/DoyleJ11/matchmaking-client/internal/matchmaking"
	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	idleTimeout  = 2 * time.Minute
	replyTimeout = 5 * time.Second
)

var errHubClosed = errors.New("matchmaking hub is shut down")

// Hub is the part of *hub.Hub the endpoint needs.
type Hub interface {
	Send(ctx context.Context, m hub.Msg) bool
}

// Handler streams hub notices to a UI client and feeds its commands back.
func Handler(h Hub, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan hub.Notice, 16)
		clientID := uuid.NewString()

		if !h.Send(r.Context(), hub.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		}
		defer h.Send(context.Background(), hub.Leave{ClientID: clientID})
		log.Debugw("ui client connected", "client", clientID)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				var n hub.Notice
				var ok bool
				select {
				case <-writeCtx.Done():
					return
				case n, ok = <-out:
				}
				if !ok {
					// Hub dropped us or shut down.
					conn.Close(websocket.StatusGoingAway, "closed")
					return
				}
				payload, err := json.Marshal(toServerMessage(n))
				if err != nil {
					log.Errorw("encoding notice", "kind", n.Kind, "error", err)
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), idleTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debugw("ui client read failed", "client", clientID, "error", err)
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			msg, ok := toHubMsg(cm)
			if !ok {
				continue
			}
			if err := deliver(r.Context(), h, msg); err != nil {
				writeError(r.Context(), conn, err.Error())
			}
		}
	}
}

// deliver hands msg to the hub and, for commands, waits for the result.
func deliver(ctx context.Context, h Hub, msg hub.Msg) error {
	fc, isCmd := msg.(hub.FromClient)
	if !isCmd {
		if !h.Send(ctx, msg) {
			return errHubClosed
		}
		return nil
	}
	fc.Reply = make(chan error, 1)
	if !h.Send(ctx, fc) {
		return errHubClosed
	}
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	select {
	case err := <-fc.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, text string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: text})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

// toHubMsg maps a UI message onto the hub. ok is false for keepalives.
func toHubMsg(m types.ClientMessage) (hub.Msg, bool) {
	switch m.Type {
	case "Ping":
		return nil, false
	case "GameStatus":
		return hub.GameStatus{Ended: m.Ended, Safe: m.Safe}, true
	}

	cmd := matchmaking.Command{
		Type:      matchmaking.CommandType(m.Type),
		Mode:      types.Mode(m.Mode),
		Step:      types.WizardStep(m.Step),
		Value:     m.Value,
		Group:     types.MatchGroup(m.Group),
		SessionID: types.SessionID(m.SessionID),
		GroupID:   types.GroupID(m.GroupID),
		ServerID:  types.SteamID(m.ServerID),
		Source:    m.Source,
		Reason:    m.Reason,
		Text:      m.Text,
		Abandon:   m.Abandon,
	}
	switch cmd.Type {
	case matchmaking.CmdSetMapSelected:
		cmd.Name, cmd.On = m.Map, m.Selected
	case matchmaking.CmdSetMissionSelected:
		cmd.Name, cmd.On = m.Mission, m.Selected
	case matchmaking.CmdSetQuickplayCategory:
		cmd.Name = m.Category
	case matchmaking.CmdSetLateJoin, matchmaking.CmdSetPlayForBraggingRights:
		cmd.On = m.Enabled
	}
	return hub.FromClient{Cmd: cmd}, true
}

func toServerMessage(n hub.Notice) types.ServerMessage {
	switch n.Kind {
	case hub.NoticeMessage:
		return types.ServerMessage{Type: "UserMessage", Text: n.Message.Text, Fatal: n.Message.Fatal}
	case hub.NoticeChat:
		return types.ServerMessage{Type: "PartyChat", Text: n.Text, From: uint64(n.From)}
	case hub.NoticeDisconnect:
		return types.ServerMessage{Type: "Disconnect", Text: n.Text}
	}
	state := n.State
	return types.ServerMessage{Type: "State", Version: n.Version, State: &state}
}
