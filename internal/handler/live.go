package handler

import (
	"net/http"
	"time"

	"carmarket/storefront/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second // must be < pongWait
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type LiveMessage struct {
	Type     string              `json:"type"`
	Seq      uint64              `json:"seq"`
	Auctions []model.AuctionView `json:"auctions"`
}

// LiveAuctions streams the auction list after every applied snapshot.
// The subscription ends with the connection.
func (h *Handler) LiveAuctions(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("ws_upgrade_failed", zap.Error(err))
		return
	}

	send := make(chan model.Snapshot, 4)
	unsubscribe := h.feed.Subscribe(func(snap model.Snapshot) {
		select {
		case send <- snap:
		default:
			// A slow client skips a frame; the next one carries full state.
		}
	})

	if snap, ok := h.feed.Snapshot(); ok {
		select {
		case send <- snap:
		default:
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case <-closed:
			return
		case snap := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			msg := LiveMessage{Type: "auctions", Seq: snap.Seq, Auctions: h.auctions.Views(snap)}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
