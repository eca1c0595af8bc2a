package internal

import (
	"context"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/glasswing/auth-relay/internal/config"
	"github.com/glasswing/auth-relay/internal/credential"
	"github.com/glasswing/auth-relay/internal/log"
	"github.com/glasswing/auth-relay/internal/provider"
	"github.com/glasswing/auth-relay/internal/server"
	"github.com/glasswing/auth-relay/internal/store"
	"github.com/glasswing/auth-relay/internal/urlutil"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// AuthRelay represents the complete login relay application
type AuthRelay struct {
	config     config.Config
	httpServer *server.HTTPServer
	sweeper    *store.Sweeper
	store      store.Store
}

// NewAuthRelay creates a new relay application with all dependencies built
func NewAuthRelay(ctx context.Context, cfg config.Config) (*AuthRelay, error) {
	log.LogInfoWithFields("relay", "Building login relay application", map[string]any{
		"baseURL":   cfg.Relay.BaseURL,
		"providers": len(cfg.Providers),
		"storage":   string(cfg.Relay.Storage),
	})

	if _, err := url.Parse(cfg.Relay.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	callbackURL, err := urlutil.JoinPath(cfg.Relay.BaseURL, "auth/callback")
	if err != nil {
		return nil, fmt.Errorf("deriving callback URL: %w", err)
	}

	sessionStore, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	providers, err := setupProviders(cfg, callbackURL)
	if err != nil {
		return nil, fmt.Errorf("failed to setup providers: %w", err)
	}

	introspector, err := credential.NewIntrospector(cfg.Relay.AppBaseURL, cfg.Relay.CookieName)
	if err != nil {
		return nil, fmt.Errorf("failed to setup introspector: %w", err)
	}

	handlers := server.NewAuthHandlers(
		sessionStore,
		providers,
		introspector,
		cfg.Relay.CookieName,
		cfg.Relay.AllowedCallbackSchemes,
		cfg.Relay.DefaultCallbackURL,
	)
	handler := server.NewHandler(handlers, cfg.Relay.AllowedOrigins)
	httpServer := server.NewHTTPServer(handler, cfg.Relay.Addr)

	sweeper := store.NewSweeper(sessionStore, cfg.Relay.SweepInterval.Value())

	return &AuthRelay{
		config:     cfg,
		httpServer: httpServer,
		sweeper:    sweeper,
		store:      sessionStore,
	}, nil
}

// Run starts the relay and blocks until shutdown completes.
func (a *AuthRelay) Run() error {
	log.LogInfoWithFields("relay", "Starting login relay", map[string]any{
		"addr":      a.config.Relay.Addr,
		"providers": len(a.config.Providers),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.sweeper.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.LogInfoWithFields("relay", "Starting graceful shutdown", map[string]any{
			"timeout": "30s",
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		a.sweeper.Stop()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	log.LogInfoWithFields("relay", "Application shutdown complete", nil)
	return err
}

// setupStorage creates the session store named by the configuration.
func setupStorage(ctx context.Context, cfg config.Config) (store.Store, error) {
	ttl := cfg.Relay.SessionTTL.Value()

	switch cfg.Relay.Storage {
	case config.StorageRedis:
		log.LogInfoWithFields("storage", "Using Redis session store", map[string]any{
			"addr": cfg.Relay.RedisAddr,
		})
		client := redis.NewClient(&redis.Options{Addr: cfg.Relay.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Relay.RedisAddr, err)
		}
		return store.NewRedisStore(client, ttl), nil
	case config.StorageMemory, "":
		log.LogInfoWithFields("storage", "Using in-memory session store", map[string]any{
			"ttl": ttl.String(),
		})
		return store.NewMemoryStore(ttl), nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Relay.Storage)
	}
}

// setupProviders builds the provider registry from configuration.
func setupProviders(cfg config.Config, callbackURL string) (*provider.Registry, error) {
	var providers []provider.Provider
	for name, pc := range cfg.Providers {
		switch pc.Kind {
		case config.ProviderKindOAuth:
			endpointName := pc.Endpoint
			if endpointName == "" && pc.AuthURL == "" && pc.TokenURL == "" {
				// No explicit endpoint URLs: try the provider name as a
				// well-known endpoint
				endpointName = name
			}
			endpoint, err := provider.Endpoint(endpointName, pc.AuthURL, pc.TokenURL)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", name, err)
			}
			providers = append(providers, provider.NewOAuthProvider(
				name, pc.ClientID, string(pc.ClientSecret), callbackURL, endpoint, pc.Scopes))
		case config.ProviderKindHosted, "":
			p, err := provider.NewHostedProvider(name, cfg.Relay.AppBaseURL, callbackURL)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", name, err)
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("provider %q: unknown kind %q", name, pc.Kind)
		}
	}
	return provider.NewRegistry(providers...), nil
}
