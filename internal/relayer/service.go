package relayer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/config"
	"github.com/bitgreen/bridge-relayers/pkg/clients/evm"
	"github.com/bitgreen/bridge-relayers/pkg/clients/pallet"
	"github.com/bitgreen/bridge-relayers/pkg/db"
	"github.com/bitgreen/bridge-relayers/pkg/dispatcher"
	"github.com/bitgreen/bridge-relayers/pkg/metrics"
	"github.com/bitgreen/bridge-relayers/pkg/monitor"
	"github.com/bitgreen/bridge-relayers/pkg/server"
	"github.com/bitgreen/bridge-relayers/pkg/source"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

type Mode string

const (
	ModeKeeper   Mode = "keeper"
	ModeWatchdog Mode = "watchdog"
	ModeWatchcat Mode = "watchcat"
)

type Service struct {
	Mode         Mode
	DbAdapter    *db.DatabaseAdapter
	PalletClient *pallet.Client
	EvmClient    *evm.EvmClient
	Metrics      *metrics.Metrics
	Lockdown     *monitor.Lockdown
	Server       *server.Server

	runners []Runner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errCh   chan error
}

// NewServiceWithRunners builds a service around already wired runners
func NewServiceWithRunners(mode Mode, runners ...Runner) *Service {
	return &Service{
		Mode:    mode,
		runners: runners,
		errCh:   make(chan error, 1),
	}
}

func NewService(ctx context.Context, cfg *config.Config, mode Mode) (*Service, error) {
	s := NewServiceWithRunners(mode)
	s.Metrics = metrics.New(string(mode))
	if err := s.connect(ctx, cfg); err != nil {
		s.Stop()
		return nil, err
	}
	nonces := evm.NewNonceManager(s.EvmClient)
	process := string(mode)
	switch mode {
	case ModeKeeper:
		s.Lockdown = monitor.NewLockdown(s.PalletClient, s.EvmClient, nonces, s.Metrics)
		options := []dispatcher.Option{dispatcher.WithMetrics(s.Metrics), dispatcher.WithLockdown(s.Lockdown)}
		if s.DbAdapter != nil {
			options = append(options, dispatcher.WithRecorder(s.DbAdapter))
		}
		d := dispatcher.New(dispatcher.Options{
			Process:   process,
			MintToken: cfg.Pallet.MintToken,
			AssetID:   cfg.Pallet.AssetID,
			QueueMode: cfg.QueueMode,
		}, s.PalletClient, s.EvmClient, nonces, dispatcher.Ledgers{
			Mint: s.PalletClient.MintLedger(),
			Burn: s.PalletClient.BurnLedger(),
			Evm:  s.EvmClient.Ledger(),
		}, options...)
		s.addRelayLoops(process, d.Handle)
		s.runners = append(s.runners, NewTickerRunner("lockdown-sync", DEFAULT_LOCKDOWN_SYNC_INTERVAL, s.Lockdown.Sync))
	case ModeWatchdog:
		s.Lockdown = monitor.NewLockdown(s.PalletClient, s.EvmClient, nonces, s.Metrics)
		watchdog := monitor.NewWatchdog(s.PalletClient, s.EvmClient, s.Lockdown, cfg.Pallet.AssetID, cfg.Pallet.Token, s.Metrics)
		s.addRelayLoops(process, watchdog.HandleEvent)
	case ModeWatchcat:
		watchcat := monitor.NewWatchcat(s.EvmClient, nonces, s.EvmClient.RouterAddress, cfg.BlockThreshold)
		s.runners = append(s.runners, NewMempoolRunner(s.EvmClient, watchcat), NewHeadRunner(s.EvmClient, watchcat))
	default:
		s.Stop()
		return nil, fmt.Errorf("unknown mode %s", mode)
	}
	s.checkRegistration(ctx, cfg.Pallet.Token)
	if cfg.HTTP.Addr != "" {
		s.Server = server.New(cfg.HTTP.Addr, process, []types.ChainID{types.ChainPallet, types.ChainEvm},
			s.store(), s.lockdownState(), s.Metrics)
		s.runners = append(s.runners, &serverRunner{server: s.Server})
	}
	return s, nil
}

func (s *Service) connect(ctx context.Context, cfg *config.Config) error {
	var err error
	if cfg.Database.URL != "" {
		s.DbAdapter, err = db.NewDatabaseAdapter(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to create database adapter: %w", err)
		}
	}
	if s.Mode != ModeWatchcat {
		s.PalletClient, err = pallet.NewClient(ctx, &cfg.Pallet)
		if err != nil {
			return fmt.Errorf("failed to create pallet client: %w", err)
		}
	}
	s.EvmClient, err = evm.NewEvmClient(ctx, &cfg.Evm)
	if err != nil {
		return fmt.Errorf("failed to create evm client: %w", err)
	}
	return nil
}

// checkRegistration warns when the signing accounts are not registered for this mode.
func (s *Service) checkRegistration(ctx context.Context, token string) {
	var (
		registered func(ctx context.Context) ([]common.Address, error)
		isMember   func(settings *types.BridgeSettings, address string) bool
	)
	switch s.Mode {
	case ModeKeeper:
		registered, isMember = s.EvmClient.GetKeepers, (*types.BridgeSettings).IsKeeper
	case ModeWatchdog:
		registered, isMember = s.EvmClient.GetWatchdogs, (*types.BridgeSettings).IsWatchdog
	case ModeWatchcat:
		registered = s.EvmClient.GetWatchcats
	}
	accounts, err := registered(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("[Relayer] [checkRegistration] failed to read router accounts")
	} else if !slices.Contains(accounts, s.EvmClient.Account()) {
		log.Warn().Str("mode", string(s.Mode)).Str("account", s.EvmClient.Account().Hex()).
			Msg("[Relayer] [checkRegistration] evm account is not registered on the router")
	}
	if isMember == nil || s.PalletClient == nil {
		return
	}
	settings, err := s.PalletClient.Settings(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("[Relayer] [checkRegistration] failed to read bridge settings")
		return
	}
	if !isMember(settings, s.PalletClient.Address()) {
		log.Warn().Str("mode", string(s.Mode)).Str("account", s.PalletClient.Address()).
			Msg("[Relayer] [checkRegistration] pallet account is not registered in the bridge settings")
	}
}

func (s *Service) addRelayLoops(process string, handler Handler) {
	palletLoop := NewRelayLoop("pallet-to-evm", process, types.ChainPallet,
		source.NewPalletSource(s.PalletClient).Subscribe, handler).WithMetrics(s.Metrics)
	evmLoop := NewRelayLoop("evm-to-pallet", process, types.ChainEvm,
		source.NewEvmSource(s.EvmClient).Subscribe, handler).WithMetrics(s.Metrics)
	if s.DbAdapter != nil {
		palletLoop.WithCheckpoints(s.DbAdapter)
		evmLoop.WithCheckpoints(s.DbAdapter)
	}
	s.runners = append(s.runners, palletLoop, evmLoop)
}

func (s *Service) store() server.Store {
	if s.DbAdapter == nil {
		return nil
	}
	return s.DbAdapter
}

func (s *Service) lockdownState() server.LockdownState {
	if s.Lockdown == nil {
		return nil
	}
	return s.Lockdown
}

// Start launches every runner. The first runner failing stops the others and is reported on Err.
func (s *Service) Start(ctx context.Context) error {
	if len(s.runners) == 0 {
		return fmt.Errorf("service %s has nothing to run", s.Mode)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, runner := range s.runners {
		s.wg.Add(1)
		go func(runner Runner) {
			defer s.wg.Done()
			err := runner.Run(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				log.Info().Str("runner", runner.Name()).Msg("[Relayer] [Start] runner stopped")
				return
			}
			log.Error().Err(err).Str("runner", runner.Name()).Msg("[Relayer] [Start] runner failed")
			select {
			case s.errCh <- fmt.Errorf("%s: %w", runner.Name(), err):
			default:
			}
			cancel()
		}(runner)
	}
	log.Info().Str("mode", string(s.Mode)).Int("runners", len(s.runners)).Msg("[Relayer] [Start] service started")
	return nil
}

// Err delivers the first runner failure
func (s *Service) Err() <-chan error {
	return s.errCh
}

func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.PalletClient != nil {
		s.PalletClient.Close()
	}
	if s.EvmClient != nil {
		s.EvmClient.Close()
	}
	if s.DbAdapter != nil {
		if err := s.DbAdapter.Close(); err != nil {
			log.Warn().Err(err).Msg("[Relayer] [Stop] failed to close database")
		}
	}
	log.Info().Str("mode", string(s.Mode)).Msg("[Relayer] [Stop] service stopped")
}

type serverRunner struct {
	server *server.Server
}

func (r *serverRunner) Name() string {
	return "http"
}

func (r *serverRunner) Run(ctx context.Context) error {
	return r.server.Start(ctx)
}
