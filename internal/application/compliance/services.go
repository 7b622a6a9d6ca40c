package compliance

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/bryanwahyu/cbomkit/internal/domain/ai"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
)

// Service inspects stored CBOMs.
type Service struct {
	CBOMs   cbom.ReadRepository
	Advisor ai.Client
	Logger  hclog.Logger
}

// Assets lists the cryptographic assets of a project's CBOM.
func (s *Service) Assets(ctx context.Context, projectIdentifier string) ([]CryptoAsset, error) {
	model, err := s.CBOMs.FindByProjectIdentifier(ctx, projectIdentifier)
	if err != nil {
		return nil, err
	}
	c, err := model.Artifact()
	if err != nil {
		return nil, err
	}
	return AssetsOf(c), nil
}

// Assess rates a project's assets. The AI advisor is asked when configured;
// if it is unavailable or over quota the built-in rules answer instead.
func (s *Service) Assess(ctx context.Context, projectIdentifier string) (string, error) {
	assets, err := s.Assets(ctx, projectIdentifier)
	if err != nil {
		return "", err
	}
	if s.Advisor != nil {
		out, err := s.Advisor.Assess(ctx, projectIdentifier, Inventory(assets))
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ai.ErrQuotaExceeded) {
			return "", err
		}
		if s.Logger != nil {
			s.Logger.Warn("ai quota exceeded, using built-in rules", "project", projectIdentifier)
		}
	}
	return Assess(projectIdentifier, assets).JSON()
}
