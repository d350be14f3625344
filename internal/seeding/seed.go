// Package seeding provisions the first-party app clients that the
// federation core expects to exist before any traffic arrives.
package seeding

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/peeap/identity-service/internal/clients"
	"github.com/peeap/identity-service/internal/domain"
	"github.com/peeap/identity-service/internal/storage"
	"go.uber.org/zap"
)

// Seeder creates default registrations. All operations are idempotent so
// the binary can run on every deploy.
type Seeder struct {
	registry *clients.Registry
	store    storage.Store
	logger   *zap.Logger
}

// New constructs a seeder.
func New(registry *clients.Registry, store storage.Store, logger *zap.Logger) *Seeder {
	return &Seeder{registry: registry, store: store, logger: logger}
}

type defaultClient struct {
	name         string
	redirectURIs []string
	scopes       string
	confidential bool
}

// First-party apps on the shared parent domain. Subdomain wildcards cover
// per-tenant deployments like ses.gov.school.edu.sl.
var defaults = []defaultClient{
	{
		name:         "wallet",
		redirectURIs: []string{"https://wallet.peeap.com/callback"},
		scopes:       "openid profile wallet:read wallet:write",
		confidential: true,
	},
	{
		name:         "merchant",
		redirectURIs: []string{"https://merchant.peeap.com/callback", "https://*.merchant.peeap.com/callback"},
		scopes:       "openid profile payments:read payments:write",
		confidential: true,
	},
	{
		name:         "checkout",
		redirectURIs: []string{"https://checkout.peeap.com/callback"},
		scopes:       "openid payments:write",
		confidential: false,
	},
	{
		name:         "developer",
		redirectURIs: []string{"https://developer.peeap.com/callback"},
		scopes:       "openid profile admin",
		confidential: true,
	},
}

// SeedDefaults registers the first-party clients that are not present yet.
// Secrets for newly created confidential clients are logged once; they are
// not recoverable afterwards.
func (s *Seeder) SeedDefaults(ctx context.Context) error {
	existing, err := s.store.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		present[c.Name] = struct{}{}
	}

	for _, def := range defaults {
		if _, ok := present[def.name]; ok {
			s.logger.Info("client already seeded", zap.String("name", def.name))
			continue
		}
		client, secret, err := s.registry.Register(ctx, clients.RegisterInput{
			Name:         def.name,
			RedirectURIs: def.redirectURIs,
			Scopes:       domain.ParseScopes(def.scopes),
			Confidential: def.confidential,
		})
		if err != nil {
			if errors.Is(err, clients.ErrClientExists) {
				continue
			}
			return fmt.Errorf("seed client %s: %w", def.name, err)
		}
		fields := []zap.Field{
			zap.String("name", def.name),
			zap.String("client_id", client.ClientID),
		}
		if secret != "" {
			fields = append(fields, zap.String("client_secret", secret))
		}
		s.logger.Info("seeded client", fields...)
	}
	return nil
}

// devWebhookURL receives every lifecycle event in development so webhook
// delivery can be exercised without registering an endpoint by hand.
const devWebhookURL = "http://localhost:4299/webhooks/identity"

// SeedDevWebhook registers a catch-all webhook endpoint for the developer
// client. It is a no-op when the endpoint already exists and must not run
// outside development environments.
func (s *Seeder) SeedDevWebhook(ctx context.Context) error {
	existing, err := s.store.ListEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("list webhook endpoints: %w", err)
	}
	for _, ep := range existing {
		if ep.URL == devWebhookURL {
			s.logger.Info("dev webhook already seeded", zap.String("url", ep.URL))
			return nil
		}
	}

	owner, err := s.findClientByName(ctx, "developer")
	if err != nil {
		return err
	}
	endpoint := &domain.WebhookEndpoint{
		ID:       uuid.New(),
		ClientID: owner.ClientID,
		URL:      devWebhookURL,
		Secret:   "dev-webhook-secret",
		Events:   []string{"*"},
		Active:   true,
	}
	if err := s.store.CreateEndpoint(ctx, endpoint); err != nil {
		return fmt.Errorf("seed dev webhook: %w", err)
	}
	s.logger.Info("seeded dev webhook",
		zap.String("url", endpoint.URL),
		zap.String("client_id", owner.ClientID))
	return nil
}

func (s *Seeder) findClientByName(ctx context.Context, name string) (*domain.Client, error) {
	all, err := s.store.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	for _, c := range all {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("client %q not seeded", name)
}
