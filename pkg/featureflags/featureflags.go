package featureflags

import (
	"context"

	"smallbiznis-rewards/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// AwardClaims switches the claim endpoint on or off per account.
	AwardClaims = "award_claims"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// FeatureFlag answers feature switches for an identity. Switches that are
// undefined, or that cannot be fetched, read as enabled.
type FeatureFlag interface {
	Enabled(ctx context.Context, identifier, feature string) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		zap.L().Info("flagsmith api key not set, every feature is enabled")
		return alwaysOn{}
	}

	var opts []flagsmith.Option
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Enabled(ctx context.Context, identifier, feature string) bool {
	flags, err := s.client.GetIdentityFlags(identifier, nil)
	if err != nil {
		zap.L().Warn("failed to fetch feature flags",
			zap.String("identifier", identifier),
			zap.String("feature", feature),
			zap.Error(err),
		)
		return true
	}

	enabled, err := flags.IsFeatureEnabled(feature)
	if err != nil {
		return true
	}
	return enabled
}

type alwaysOn struct{}

func (alwaysOn) Enabled(context.Context, string, string) bool { return true }
