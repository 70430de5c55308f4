package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"stellar-tipbot-go/internal/api"
	"stellar-tipbot-go/internal/config"
	"stellar-tipbot-go/internal/database"
	"stellar-tipbot-go/internal/events"
	"stellar-tipbot-go/internal/formance"
	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/network"
	"stellar-tipbot-go/internal/prime"
	"stellar-tipbot-go/internal/stellar"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads a .env file from the working directory when one exists.
// Variables already set in the environment take precedence.
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded (%v); using the process environment\n", err)
		return
	}
	log.Println("✓ Loaded environment variables from .env file")
}

// Services holds everything a command needs to run ledger operations.
// Prime, Mirror and Events are nil when not configured.
type Services struct {
	DbService  *database.Service
	Network    network.Network
	Prime      *prime.Service
	Mirror     *formance.Mirror
	Events     *events.Channel
	ApiService *api.LedgerService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService}

	if err := services.initializeNetwork(ctx, cfg); err != nil {
		services.Close()
		return nil, err
	}

	notifiers := events.Fanout{events.LogNotifier{}}
	if cfg.Formance.Enabled {
		mirror, err := formance.NewMirror(ctx, cfg.Formance)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Mirror = mirror
		notifiers = append(notifiers, mirror)
	}

	// An unbuffered channel would block commands that never read it
	if cfg.Events.BufferSize > 0 {
		services.Events = events.NewChannel(cfg.Events.BufferSize)
		notifiers = append(notifiers, services.Events)
	}

	services.ApiService = api.NewLedgerService(api.LedgerServiceConfig{
		Store:          dbService,
		Network:        services.Network,
		Notifier:       notifiers,
		WithdrawalMemo: cfg.Settlement.WithdrawalMemo,
	})

	zap.L().Info("Services initialized",
		zap.String("backend", cfg.Settlement.Backend),
		zap.String("service_address", services.Network.Address()),
		zap.Bool("formance_mirror", services.Mirror != nil))

	return services, nil
}

func (cs *Services) initializeNetwork(ctx context.Context, cfg *models.Config) error {
	switch cfg.Settlement.Backend {
	case config.BackendPrime:
		zap.L().Info("Loading Prime API credentials")
		primeService, err := prime.NewService(cfg.Prime, cfg.Listener.PollingInterval)
		if err != nil {
			return err
		}
		if err := primeService.Resolve(ctx); err != nil {
			return err
		}
		cs.Prime = primeService
		cs.Network = primeService
	case config.BackendStellar:
		stellarService, err := stellar.NewService(cfg.Stellar)
		if err != nil {
			return err
		}
		cs.Network = stellarService
	default:
		return fmt.Errorf("unknown settlement backend %q", cfg.Settlement.Backend)
	}
	return nil
}

// InitializeDatabaseOnly initializes just the database service without a network
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// DrainEvents logs delivered events until Close. It stands in for chat
// adapters, which would otherwise consume the event channel.
func (cs *Services) DrainEvents() {
	if cs.Events == nil {
		return
	}
	go func() {
		for event := range cs.Events.Events() {
			zap.L().Debug("Event delivered",
				zap.String("event", string(event.Type)),
				zap.String("adapter", event.AdapterName()))
		}
	}()
}

func (cs *Services) Close() {
	if cs.Events != nil {
		cs.Events.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
