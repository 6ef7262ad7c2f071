package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/db/models"
	"github.com/bitgreen/bridge-relayers/pkg/metrics"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

const (
	DEFAULT_RELAYS_LIMIT = 50
	MAX_RELAYS_LIMIT     = 1000
)

type Store interface {
	GetCheckpoint(ctx context.Context, process string, chain types.ChainID) (*models.EventCheckPoint, error)
	LatestRelays(ctx context.Context, limit int) ([]models.RelayRecord, error)
	FindRelaysByTransaction(ctx context.Context, transactionID string) ([]models.RelayRecord, error)
}

type LockdownState interface {
	Triggered() bool
}

type Position struct {
	Chain       types.ChainID `json:"chain"`
	BlockNumber uint64        `json:"blockNumber"`
	Index       uint16        `json:"index"`
	EventKind   string        `json:"eventKind"`
}

type StatusResponse struct {
	Process   string     `json:"process"`
	Lockdown  bool       `json:"lockdown"`
	Positions []Position `json:"positions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Server exposes the process status, relay history and metrics over http
type Server struct {
	echo     *echo.Echo
	addr     string
	process  string
	chains   []types.ChainID
	store    Store
	lockdown LockdownState
}

// New builds the server. store and lockdown may be nil.
func New(addr string, process string, chains []types.ChainID, store Store, lockdown LockdownState, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{
		echo:     e,
		addr:     addr,
		process:  process,
		chains:   chains,
		store:    store,
		lockdown: lockdown,
	}
	e.GET("/health", s.health)
	e.GET("/status", s.status)
	e.GET("/relays", s.relays)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := s.echo.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("[Server] [Start] shutdown failed")
		}
	}()
	log.Info().Str("addr", s.addr).Msg("[Server] [Start] listening")
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(c echo.Context) error {
	response := StatusResponse{Process: s.process, Positions: []Position{}}
	if s.lockdown != nil {
		response.Lockdown = s.lockdown.Triggered()
	}
	if s.store != nil {
		for _, chain := range s.chains {
			checkpoint, err := s.store.GetCheckpoint(c.Request().Context(), s.process, chain)
			if err != nil {
				continue
			}
			response.Positions = append(response.Positions, Position{
				Chain:       chain,
				BlockNumber: checkpoint.BlockNumber,
				Index:       checkpoint.Index,
				EventKind:   checkpoint.EventKind,
			})
		}
	}
	return c.JSON(http.StatusOK, response)
}

func (s *Server) relays(c echo.Context) error {
	if s.store == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "relay history is disabled"})
	}
	ctx := c.Request().Context()
	if txid := c.QueryParam("txid"); txid != "" {
		records, err := s.store.FindRelaysByTransaction(ctx, txid)
		if err != nil {
			log.Error().Err(err).Msg("[Server] [relays] failed to find relays")
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read relay history"})
		}
		return c.JSON(http.StatusOK, records)
	}
	limit := DEFAULT_RELAYS_LIMIT
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > MAX_RELAYS_LIMIT {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit should be in range [1, 1000]"})
		}
		limit = parsed
	}
	records, err := s.store.LatestRelays(ctx, limit)
	if err != nil {
		log.Error().Err(err).Msg("[Server] [relays] failed to list relays")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read relay history"})
	}
	return c.JSON(http.StatusOK, records)
}
