package main

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    "go.uber.org/zap"

    "marketagg/internal/agg"
    "marketagg/internal/provider"
)

type apiServer struct {
    svc     *agg.Service
    logger  *zap.Logger
    timeout time.Duration
}

type quotesResponse struct {
    Quotes []provider.Quote `json:"quotes"`
}

type errorResponse struct {
    Error string `json:"error"`
}

// statusFor maps the provider error taxonomy onto HTTP statuses.
func statusFor(err error) int {
    switch {
    case errors.Is(err, provider.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, provider.ErrUnsupported):
        return http.StatusNotImplemented
    case errors.Is(err, provider.ErrTimeout):
        return http.StatusGatewayTimeout
    case errors.Is(err, provider.ErrUpstream):
        return http.StatusBadGateway
    default:
        return http.StatusInternalServerError
    }
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.WriteHeader(status)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(v)
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
    status := statusFor(err)
    if status >= 500 {
        s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
    }
    writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
    writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func parseSource(raw string) (provider.Source, bool) {
    switch provider.Source(strings.ToLower(strings.TrimSpace(raw))) {
    case provider.SourceEquity:
        return provider.SourceEquity, true
    case provider.SourceCrypto:
        return provider.SourceCrypto, true
    case provider.SourcePrediction:
        return provider.SourcePrediction, true
    }
    return "", false
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(raw string) (time.Time, bool) {
    if t, err := time.Parse(time.RFC3339, raw); err == nil {
        return t, true
    }
    if sec, err := strconv.ParseInt(raw, 10, 64); err == nil && sec > 0 {
        return time.Unix(sec, 0).UTC(), true
    }
    return time.Time{}, false
}

func (s *apiServer) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
    return context.WithTimeout(r.Context(), s.timeout)
}

func (s *apiServer) routes() *http.ServeMux {
    mux := http.NewServeMux()
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte(`{"status":"ok"}`))
    })
    mux.HandleFunc("GET /api/quote", s.handleQuote)
    mux.HandleFunc("GET /api/history", s.handleHistory)
    mux.HandleFunc("GET /api/overview", s.handleOverview)
    mux.HandleFunc("GET /api/top-movers", s.handleTopMovers)
    mux.HandleFunc("GET /api/markets", s.handleMarkets)
    mux.HandleFunc("POST /api/refresh", s.handleRefresh)
    return mux
}

func (s *apiServer) handleQuote(w http.ResponseWriter, r *http.Request) {
    source, ok := parseSource(r.URL.Query().Get("source"))
    if !ok {
        writeBadRequest(w, "source must be one of equity, crypto, prediction")
        return
    }
    symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
    if symbol == "" {
        writeBadRequest(w, "missing symbol query param")
        return
    }
    ctx, cancel := s.withTimeout(r)
    defer cancel()
    q, err := s.svc.Quote(ctx, source, symbol)
    if err != nil {
        s.writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, q)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
    source, ok := parseSource(r.URL.Query().Get("source"))
    if !ok {
        writeBadRequest(w, "source must be one of equity, crypto, prediction")
        return
    }
    symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
    if symbol == "" {
        writeBadRequest(w, "missing symbol query param")
        return
    }
    end := time.Now().UTC()
    if raw := r.URL.Query().Get("end"); raw != "" {
        t, ok := parseTime(raw)
        if !ok {
            writeBadRequest(w, "end must be RFC3339 or unix seconds")
            return
        }
        end = t
    }
    start := end.Add(-24 * time.Hour)
    if raw := r.URL.Query().Get("start"); raw != "" {
        t, ok := parseTime(raw)
        if !ok {
            writeBadRequest(w, "start must be RFC3339 or unix seconds")
            return
        }
        start = t
    }
    if !start.Before(end) {
        writeBadRequest(w, "start must be before end")
        return
    }
    ctx, cancel := s.withTimeout(r)
    defer cancel()
    quotes, err := s.svc.History(ctx, source, symbol, start, end)
    if err != nil {
        s.writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, quotesResponse{Quotes: quotes})
}

func (s *apiServer) handleOverview(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := s.withTimeout(r)
    defer cancel()
    raw := r.URL.Query().Get("source")
    if raw == "" {
        quotes, err := s.svc.Overview(ctx)
        if err != nil {
            s.writeError(w, err)
            return
        }
        writeJSON(w, http.StatusOK, quotesResponse{Quotes: quotes})
        return
    }
    source, ok := parseSource(raw)
    if !ok || source != provider.SourcePrediction {
        writeBadRequest(w, "overview filter supports only source=prediction")
        return
    }
    quotes, err := s.svc.PredictionsOverview(ctx)
    if err != nil {
        s.writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, quotesResponse{Quotes: quotes})
}

func (s *apiServer) handleTopMovers(w http.ResponseWriter, r *http.Request) {
    // Source is an optional narrowing; unset ranks the combined overview.
    var source provider.Source
    if raw := r.URL.Query().Get("source"); raw != "" {
        var ok bool
        source, ok = parseSource(raw)
        if !ok {
            writeBadRequest(w, "source must be one of equity, crypto, prediction")
            return
        }
    }
    limit := 5
    if raw := r.URL.Query().Get("limit"); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil || n <= 0 {
            writeBadRequest(w, "limit must be a positive integer")
            return
        }
        limit = n
    }
    ctx, cancel := s.withTimeout(r)
    defer cancel()
    quotes, err := s.svc.TopMovers(ctx, source, limit)
    if err != nil {
        s.writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, quotesResponse{Quotes: quotes})
}

func (s *apiServer) handleMarkets(w http.ResponseWriter, r *http.Request) {
    params := provider.ListMarketsParams{Active: true, TagID: r.URL.Query().Get("tag_id")}
    if raw := r.URL.Query().Get("active"); raw != "" {
        b, err := strconv.ParseBool(raw)
        if err != nil {
            writeBadRequest(w, "active must be a boolean")
            return
        }
        params.Active = b
    }
    if raw := r.URL.Query().Get("limit"); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil || n <= 0 {
            writeBadRequest(w, "limit must be a positive integer")
            return
        }
        params.Limit = n
    }
    ctx, cancel := s.withTimeout(r)
    defer cancel()
    quotes, err := s.svc.ListMarkets(ctx, params)
    if err != nil {
        s.writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, quotesResponse{Quotes: quotes})
}

func (s *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := s.withTimeout(r)
    defer cancel()
    if err := s.svc.Refresh(ctx); err != nil {
        s.writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
