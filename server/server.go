// Package server exposes the aggregation engine's dispatch entry point
// over HTTP. It keeps the latest published ticker snapshot from the bus
// so the tick view can be served without a venue round trip.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"coinpulse/aggregator"
	"coinpulse/config"
	"coinpulse/internal/event"
	"coinpulse/logger"
	"coinpulse/models"
)

type Server struct {
	cfg        config.ServerConfig
	engine     *aggregator.Engine
	latest     atomic.Pointer[models.TickerSet]
	httpServer *http.Server
	log        *logger.Log
}

func New(cfg config.ServerConfig, engine *aggregator.Engine) *Server {
	s := &Server{
		cfg:    cfg,
		engine: engine,
		log:    logger.GetLogger(),
	}
	empty := models.TickerSet{}
	s.latest.Store(&empty)
	return s
}

// Bind keeps the server's tick snapshot current from a venue's stream.
func (s *Server) Bind(bus *event.Bus, venue string) {
	bus.Ticks(venue).Subscribe(func(set models.TickerSet) {
		s.latest.Store(&set)
	})
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/ticks", s.handleTicks)
	api.GET("/coins/:coin/amount-by-price", s.handleAmountByPrice)
	api.GET("/coins/:coin/biggest-orders", s.handleBiggestOrders)
	api.GET("/coins/:coin/bars", s.handleBars)

	return router
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.router(),
	}

	s.log.WithComponent("server").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("http server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleTicks(c *gin.Context) {
	set := *s.latest.Load()
	rows := make([]models.TickerRow, 0, len(set))
	for _, row := range set {
		rows = append(rows, row)
	}

	s.dispatch(c, aggregator.Request{Kind: aggregator.RequestTick, Ticks: rows})
}

func (s *Server) handleAmountByPrice(c *gin.Context) {
	s.dispatch(c, aggregator.Request{
		Kind:  aggregator.RequestAmountByPrice,
		Coin:  c.Param("coin"),
		Hours: intQuery(c, "hours"),
	})
}

func (s *Server) handleBiggestOrders(c *gin.Context) {
	percent, _ := strconv.ParseFloat(c.Query("percent"), 64)
	s.dispatch(c, aggregator.Request{
		Kind:    aggregator.RequestBiggestOrders,
		Coin:    c.Param("coin"),
		Hours:   intQuery(c, "hours"),
		Percent: percent,
	})
}

func (s *Server) handleBars(c *gin.Context) {
	s.dispatch(c, aggregator.Request{
		Kind:  aggregator.RequestBars,
		Coin:  c.Param("coin"),
		Hours: intQuery(c, "hours"),
	})
}

func (s *Server) dispatch(c *gin.Context, req aggregator.Request) {
	result, err := s.engine.Aggregate(c.Request.Context(), req)
	if err != nil {
		s.log.WithComponent("server").WithError(err).WithFields(logger.Fields{
			"kind": req.Kind,
			"coin": req.Coin,
		}).Warn("aggregation request failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func intQuery(c *gin.Context, name string) int {
	v, _ := strconv.Atoi(c.Query(name))
	return v
}
