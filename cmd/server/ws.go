package main

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/gorilla/websocket"
    "go.uber.org/zap"

    "marketagg/internal/agg"
)

// wsServer bridges streaming sessions onto WebSocket connections.
// Every connection owns a derived context, so one client disconnecting
// cancels only its own session.
type wsServer struct {
    svc      *agg.Service
    logger   *zap.Logger
    upgrader websocket.Upgrader
}

func newWSServer(svc *agg.Service, logger *zap.Logger) *wsServer {
    return &wsServer{
        svc:    svc,
        logger: logger,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 1024,
            CheckOrigin:     func(r *http.Request) bool { return true },
        },
    }
}

func (s *wsServer) handleStream(w http.ResponseWriter, r *http.Request) {
    source, ok := parseSource(r.URL.Query().Get("source"))
    if !ok {
        http.Error(w, "source must be one of equity, crypto, prediction", http.StatusBadRequest)
        return
    }
    symbols := splitCSV(r.URL.Query().Get("symbols"))
    if len(symbols) == 0 {
        http.Error(w, "missing symbols query param", http.StatusBadRequest)
        return
    }

    conn, err := s.upgrader.Upgrade(w, r, nil)
    if err != nil {
        s.logger.Warn("websocket upgrade failed", zap.Error(err))
        return
    }
    defer conn.Close()

    ctx, cancel := context.WithCancel(r.Context())
    defer cancel()

    ch, err := s.svc.Stream(ctx, source, symbols)
    if err != nil {
        s.logger.Warn("stream open failed", zap.String("source", string(source)), zap.Error(err))
        msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stream unavailable")
        _ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
        return
    }
    s.logger.Info("stream session opened",
        zap.String("source", string(source)), zap.Int("symbols", len(symbols)))

    // The read pump exists only to notice the client going away.
    go func() {
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                cancel()
                return
            }
        }
    }()

    for q := range ch {
        _ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
        if err := conn.WriteJSON(q); err != nil {
            cancel()
            for range ch {
            }
            return
        }
    }
    // Upstream finished; tell the client this was a clean end.
    msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
    _ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func splitCSV(s string) []string {
    parts := strings.Split(s, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, p) }
    }
    return out
}
