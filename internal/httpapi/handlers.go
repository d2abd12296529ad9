package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/matchmaking-client/internal/hub"
	"github.com/DoyleJ11/matchmaking-client/internal/matchmaking"
)

const replyTimeout = 5 * time.Second

var errHubClosed = errors.New("matchmaking hub is shut down")

// Hub is the part of *hub.Hub the operational endpoints need.
type Hub interface {
	Send(ctx context.Context, m hub.Msg) bool
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RefreshPing forces a datacenter ping refresh on the next tick.
func RefreshPing(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := run(r.Context(), h, matchmaking.Command{Type: matchmaking.CmdRefreshPing}); err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// SaveCriteria persists the current casual map selection.
func SaveCriteria(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := run(r.Context(), h, matchmaking.Command{Type: matchmaking.CmdSaveCasualCriteria}); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Dump returns one part of the orchestrator state: party, lobby, invites,
// ping, history or all.
func Dump(h Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan hub.DumpResult, 1)
		if !h.Send(r.Context(), hub.GetDump{Kind: chi.URLParam(r, "kind"), Reply: reply}) {
			writeError(w, http.StatusServiceUnavailable, errHubClosed)
			return
		}

		var res hub.DumpResult
		select {
		case res = <-reply:
		case <-r.Context().Done():
			return
		}
		if errors.Is(res.Err, matchmaking.ErrUnknownDump) {
			writeError(w, http.StatusNotFound, res.Err)
			return
		}
		if res.Err != nil {
			writeError(w, http.StatusInternalServerError, res.Err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(res.Data)
	}
}

func run(ctx context.Context, h Hub, cmd matchmaking.Command) error {
	reply := make(chan error, 1)
	if !h.Send(ctx, hub.FromClient{Cmd: cmd, Reply: reply}) {
		return errHubClosed
	}
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}
