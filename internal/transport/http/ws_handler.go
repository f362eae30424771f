package http

import (
	"context"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// WSHandler upgrades HTTP connections and runs the line protocol over
// WebSocket text frames.
type WSHandler struct {
	chat ConnHandler
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(chat ConnHandler, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{chat: chat, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Each server write becomes one text message; reads concatenate incoming
	// messages into a byte stream, so clients may split lines freely.
	netConn := websocket.NetConn(ctx, conn, websocket.MessageText)
	h.chat.Serve(ctx, netConn, "ws")
}
