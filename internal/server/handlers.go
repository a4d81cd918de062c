package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/reportwise-ai/reportwise/internal/engine"
	"github.com/reportwise-ai/reportwise/internal/knowledge"
)

// Querier is the slice of the engine the handlers need.
type Querier interface {
	Query(ctx context.Context, req engine.Request) (*engine.Answer, error)
	QueryWithEvents(ctx context.Context, req engine.Request, events chan<- engine.Event) (*engine.Answer, error)
}

type apiHandler struct {
	engine   Querier
	registry *knowledge.Registry
	pool     *engine.LanePool
	logger   *log.Logger
	stream   bool
}

// Register attaches all API routes. The rate limiter only guards the query
// endpoints; ingestion and introspection are not query traffic.
func (h *apiHandler) Register(g *echo.Group, limiter *rate.Limiter) {
	g.POST("/query", h.handleQuery, rateLimitMiddleware(limiter))
	if h.stream {
		g.GET("/query/stream", h.handleQueryStream, rateLimitMiddleware(limiter))
	}
	g.POST("/ingest", h.handleIngest)
	g.GET("/domains", h.handleDomains)
	g.GET("/domains/:domain/search", h.handleKeywordSearch)
	g.GET("/lanes", h.handleLanes)
}

func (h *apiHandler) handleQuery(c echo.Context) error {
	var req engine.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	answer, err := h.engine.Query(c.Request().Context(), req)
	if err != nil {
		return mapEngineError(err)
	}
	return c.JSON(http.StatusOK, answer)
}

func (h *apiHandler) handleQueryStream(c echo.Context) error {
	req := engine.Request{
		Query:    c.QueryParam("query"),
		Mode:     engine.Mode(c.QueryParam("mode")),
		Domain:   c.QueryParam("domain"),
		CallerID: c.QueryParam("caller_id"),
	}
	if req.Mode == "" {
		req.Mode = engine.ModeDeep
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := make(chan engine.Event, 64)
	type result struct {
		answer *engine.Answer
		err    error
	}
	done := make(chan result, 1)
	go func() {
		answer, err := h.engine.QueryWithEvents(c.Request().Context(), req, events)
		done <- result{answer, err}
	}()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case ev := <-events:
			writeSSE(w, "progress", ev)
		case res := <-done:
			// Flush progress events that raced with completion.
			for {
				select {
				case ev := <-events:
					writeSSE(w, "progress", ev)
					continue
				default:
				}
				break
			}
			if res.err != nil {
				writeSSE(w, "error", map[string]string{"error": res.err.Error()})
			} else {
				writeSSE(w, "answer", res.answer)
			}
			return nil
		}
	}
}

func writeSSE(w *echo.Response, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	w.Flush()
}

type ingestRequest struct {
	Domain string                    `json:"domain"`
	Chunks []knowledge.IncomingChunk `json:"chunks"`
}

// handleIngest validates the request and rebuilds the domain asynchronously;
// the caller gets an acknowledgement, not a completed rebuild.
func (h *apiHandler) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Chunks) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no chunks supplied")
	}
	if _, err := h.registry.Get(req.Domain); err != nil {
		return mapEngineError(err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		added, err := h.registry.Ingest(ctx, req.Domain, req.Chunks)
		if err != nil {
			h.logger.Printf("ingest into %s failed: %v", req.Domain, err)
			return
		}
		h.logger.Printf("ingested %d chunks into %s", added, req.Domain)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"status": "accepted",
		"domain": req.Domain,
		"chunks": len(req.Chunks),
	})
}

func (h *apiHandler) handleDomains(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.Domains())
}

func (h *apiHandler) handleKeywordSearch(c echo.Context) error {
	domain := c.Param("domain")
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing q parameter")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	snap, err := h.registry.Get(domain)
	if err != nil {
		return mapEngineError(err)
	}
	hits, err := snap.Keyword.Search(q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}

type laneStatus struct {
	ID       int    `json:"id"`
	Lane     string `json:"lane"`
	Health   string `json:"health"`
	Tokens   int    `json:"window_tokens"`
	Requests int    `json:"window_requests"`
}

func (h *apiHandler) handleLanes(c echo.Context) error {
	if h.pool == nil {
		return c.JSON(http.StatusOK, []laneStatus{})
	}
	lanes := h.pool.Lanes()
	out := make([]laneStatus, 0, len(lanes))
	for _, l := range lanes {
		tokens, requests := l.Usage()
		out = append(out, laneStatus{
			ID:       l.ID(),
			Lane:     l.Fingerprint(),
			Health:   l.Health().String(),
			Tokens:   tokens,
			Requests: requests,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// mapEngineError translates engine failures into HTTP statuses, keeping "no
// information exists" answers distinct from "could not process".
func mapEngineError(err error) error {
	var embErr *engine.EmbeddingError
	switch {
	case errors.Is(err, knowledge.ErrDomainNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrAllLanesExhausted):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, engine.ErrSuperseded):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &embErr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
