package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsFrame is one message in either direction on the chat socket. Exactly one
// of the payload fields is set: the client sends requests, the server answers
// with a response or an error.
type wsFrame struct {
	Request  *chatRequest  `json:"request,omitempty"`
	Response *chatResponse `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// handleWS upgrades to a WebSocket and serves chat turns until the client
// disconnects. Turns on one socket are processed sequentially; the connection
// is the conversation's session.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected exit")

	ctx := r.Context()
	log := s.log.With("remote", r.RemoteAddr)
	log.Info("websocket session opened")

	for {
		var frame wsFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				log.Info("websocket session closed")
			} else {
				log.Warn("websocket read failed", "error", err)
			}
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}
		if frame.Request == nil {
			if err := wsjson.Write(ctx, conn, wsFrame{Error: "frame missing request"}); err != nil {
				return
			}
			continue
		}

		resp, err := s.serve(ctx, *frame.Request)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if werr := wsjson.Write(ctx, conn, wsFrame{Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		if err := wsjson.Write(ctx, conn, wsFrame{Response: resp}); err != nil {
			log.Warn("websocket write failed", "error", err)
			return
		}
	}
}
