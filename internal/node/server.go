package node

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/edgerelay/internal/host"
	"github.com/danmuck/edgerelay/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	Version = "0.1.0"

	// SenderHeader names the caller of an execute request.
	SenderHeader  = "X-Sender"
	defaultSender = "http"
	maxBodyBytes  = 1 << 20
)

// ChainNode serves a single chain.
type ChainNode struct {
	ID       string
	Chain    *host.Chain
	Appeared time.Time

	router *gin.Engine
}

var _ Node = (*ChainNode)(nil)

func Appear(id string, chain *host.Chain, corsOrigins []string) *ChainNode {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  normalizeOrigins(corsOrigins),
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type", SenderHeader, observability.RequestIDHeader},
		ExposeHeaders: []string{observability.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	n := &ChainNode{
		ID:       id,
		Chain:    chain,
		Appeared: time.Now(),
		router:   r,
	}
	n.RegisterRoutes()
	return n
}

func (n *ChainNode) NodeID() string { return n.ID }

func (n *ChainNode) Kind() string { return "chain" }

func (n *ChainNode) HTTPRouter() *gin.Engine { return n.router }

func (n *ChainNode) RegisterRoutes() {
	r := n.router
	r.GET("/health", n.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/contracts", n.listContracts)
	r.POST("/contracts/:addr/execute", n.execute)
	r.POST("/contracts/:addr/query", n.query)
	r.GET("/channels", n.listChannels)
	r.GET("/channels/:id", n.getChannel)
	r.GET("/channels/:id/pending", n.pending)
	r.POST("/channels/:id/close", n.closeChannel)
	r.POST("/clock/advance", n.advance)
}

func (n *ChainNode) health(c *gin.Context) {
	st, err := n.Chain.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(n.Appeared).String(),
		"service": n.ID,
		"version": Version,
		"chain":   st.ChainID,
		"height":  st.Height,
		"time":    time.Unix(0, st.Time).UTC(),
	})
}

func (n *ChainNode) listContracts(c *gin.Context) {
	contracts, err := n.Chain.Contracts()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

func (n *ChainNode) execute(c *gin.Context) {
	body, ok := readJSONBody(c)
	if !ok {
		return
	}
	sender := strings.TrimSpace(c.GetHeader(SenderHeader))
	if sender == "" {
		sender = defaultSender
	}
	addr := c.Param("addr")
	res, err := n.Chain.Execute(c.Request.Context(), sender, addr, body)
	if err != nil {
		log.Warn().Err(err).Str("node", n.ID).Str("contract", addr).Msg("execute failed")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (n *ChainNode) query(c *gin.Context) {
	body, ok := readJSONBody(c)
	if !ok {
		return
	}
	out, err := n.Chain.Query(c.Request.Context(), c.Param("addr"), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}

func (n *ChainNode) listChannels(c *gin.Context) {
	channels, err := n.Chain.Channels(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

func (n *ChainNode) getChannel(c *gin.Context) {
	ch, err := n.Chain.Channel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (n *ChainNode) pending(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := n.Chain.Channel(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	packets, err := n.Chain.PendingPackets(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packets": packets})
}

func (n *ChainNode) closeChannel(c *gin.Context) {
	res, err := n.Chain.CloseChannel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type advanceRequest struct {
	Blocks   int    `json:"blocks"`
	Duration string `json:"duration"`
}

// advance moves the chain clock. Either blocks or a duration is given.
func (n *ChainNode) advance(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	switch {
	case req.Blocks > 0 && req.Duration == "":
		err = n.Chain.AdvanceBlocks(req.Blocks)
	case req.Duration != "" && req.Blocks == 0:
		var d time.Duration
		d, err = time.ParseDuration(req.Duration)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err = n.Chain.AdvanceTime(d)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected exactly one of blocks, duration"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	n.health(c)
}

func readJSONBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if len(body) > maxBodyBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body exceeds " + strconv.Itoa(maxBodyBytes) + " bytes"})
		return nil, false
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is not valid json"})
		return nil, false
	}
	return body, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, host.ErrContractNotFound), errors.Is(err, host.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, host.ErrChannelState):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
