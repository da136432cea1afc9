package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-matrix/internal/advisor"
	"github.com/p-n-ai/pai-matrix/internal/blueprint"
	"github.com/p-n-ai/pai-matrix/internal/matrix"
	"github.com/p-n-ai/pai-matrix/internal/schema"
)

// Live message and reply types.
const (
	liveEdit       = "edit"
	liveDistribute = "distribute"
	liveBlueprint  = "blueprint"
	liveError      = "error"
)

type liveMessage struct {
	Type    string                `json:"type"`
	Version int                   `json:"version"`
	Ratio   blueprint.RatioOption `json:"ratio"`
	Edits   []matrix.RowEdit      `json:"edits"`
}

type liveReply struct {
	Type       string              `json:"type"`
	Blueprint  *matrix.View        `json:"blueprint,omitempty"`
	Suggestion *advisor.Suggestion `json:"suggestion,omitempty"`
	Error      string              `json:"error,omitempty"`
	Status     int                 `json:"status,omitempty"`
}

// handleLive upgrades to a websocket that sends the blueprint, then answers
// every edit or distribute message with the updated blueprint. Failed
// messages get an error reply and the connection stays open.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := &websocket.AcceptOptions{}
	if patterns, restricted := originPatterns(h.origins); restricted {
		opts.OriginPatterns = patterns
	} else {
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Warn("websocket accept failed", "blueprint_id", id, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	if err := wsjson.Write(ctx, conn, liveReply{Type: liveBlueprint, Blueprint: &view}); err != nil {
		return
	}
	slog.Debug("live session opened", "blueprint_id", id)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				slog.Debug("live session closed", "blueprint_id", id)
			default:
				slog.Debug("live session read failed", "blueprint_id", id, "error", err)
			}
			return
		}

		reply := h.applyLive(r, id, raw)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			slog.Debug("live session write failed", "blueprint_id", id, "error", err)
			return
		}
	}
}

func (h *Handler) applyLive(r *http.Request, id string, raw []byte) liveReply {
	if err := h.validator.Validate(schema.LiveMessage, raw); err != nil {
		return errorReply(err)
	}
	var msg liveMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errorReply(fmt.Errorf("%w: %w", matrix.ErrInvalidInput, err))
	}

	switch msg.Type {
	case liveEdit:
		view, err := h.svc.UpdateRows(r.Context(), id, msg.Version, msg.Edits)
		if err != nil {
			return errorReply(err)
		}
		return liveReply{Type: liveBlueprint, Blueprint: &view}
	case liveDistribute:
		d, err := h.svc.Distribute(r.Context(), id, matrix.DistributeRequest{Version: msg.Version, Ratio: msg.Ratio})
		if err != nil {
			return errorReply(err)
		}
		return liveReply{Type: liveBlueprint, Blueprint: &d.View, Suggestion: d.Suggestion}
	default:
		return errorReply(fmt.Errorf("%w: unknown message type %q", matrix.ErrInvalidInput, msg.Type))
	}
}

func errorReply(err error) liveReply {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("live message failed", "error", err)
		msg = "internal error"
	}
	return liveReply{Type: liveError, Error: msg, Status: status}
}
