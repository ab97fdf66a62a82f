//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"bagbot/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config, cfgPath string) (*App, error) {
	wire.Build(provideAppBuilder, provideAppFromBuilder)
	return nil, nil
}
