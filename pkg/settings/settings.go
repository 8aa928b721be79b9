// Package settings exports, imports and clears the operator-managed
// collections: provider keys, server keys and models. Cached responses
// are not part of a settings bundle.
package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/cachegate/pkg/catalog"
	"github.com/pario-ai/cachegate/pkg/keys"
	"github.com/pario-ai/cachegate/pkg/models"
)

// Service bundles the operator-managed collections.
type Service struct {
	providerKeys *keys.ProviderKeyService
	serverKeys   *keys.ServerKeyService
	models       *catalog.ModelService
	logger       *zap.Logger
}

// New creates a settings Service.
func New(pk *keys.ProviderKeyService, sk *keys.ServerKeyService, ms *catalog.ModelService, logger *zap.Logger) *Service {
	return &Service{
		providerKeys: pk,
		serverKeys:   sk,
		models:       ms,
		logger:       logger.With(zap.String("component", "settings")),
	}
}

// Export loads all three collections concurrently.
func (s *Service) Export(ctx context.Context) (models.Bundle, error) {
	var b models.Bundle
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := s.providerKeys.List(gctx)
		b.ProviderKeys = v
		return err
	})
	g.Go(func() error {
		v, err := s.serverKeys.List(gctx)
		b.ServerKeys = v
		return err
	})
	g.Go(func() error {
		v, err := s.models.List(gctx)
		b.Models = v
		return err
	})

	if err := g.Wait(); err != nil {
		return models.Bundle{}, fmt.Errorf("export settings: %w", err)
	}
	return b, nil
}

// Import parses a bundle and merges each collection according to policy.
// Missing sections are treated as empty.
func (s *Service) Import(ctx context.Context, data []byte, policy models.ConflictPolicy) (models.ImportReport, error) {
	var b models.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return models.ImportReport{}, fmt.Errorf("parse settings bundle: %w", err)
	}

	var report models.ImportReport
	var err error
	if report.ProviderKeys, err = s.providerKeys.Import(ctx, b.ProviderKeys, policy); err != nil {
		return models.ImportReport{}, fmt.Errorf("import provider keys: %w", err)
	}
	if report.ServerKeys, err = s.serverKeys.Import(ctx, b.ServerKeys, policy); err != nil {
		return models.ImportReport{}, fmt.Errorf("import server keys: %w", err)
	}
	if report.Models, err = s.models.Import(ctx, b.Models, policy); err != nil {
		return models.ImportReport{}, fmt.Errorf("import models: %w", err)
	}

	s.logger.Info("settings imported",
		zap.String("policy", string(policy)),
		zap.Int("provider_keys_added", report.ProviderKeys.Added),
		zap.Int("server_keys_added", report.ServerKeys.Added),
		zap.Int("models_added", report.Models.Added),
	)
	return report, nil
}

// ClearAll removes every provider key, server key and model.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.providerKeys.Clear(ctx); err != nil {
		return fmt.Errorf("clear provider keys: %w", err)
	}
	if err := s.serverKeys.Clear(ctx); err != nil {
		return fmt.Errorf("clear server keys: %w", err)
	}
	if err := s.models.Clear(ctx); err != nil {
		return fmt.Errorf("clear models: %w", err)
	}
	s.logger.Info("all settings cleared")
	return nil
}
