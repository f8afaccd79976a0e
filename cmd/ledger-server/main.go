package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/ledgerapp"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := ledgerapp.LoadConfig()
		if err != nil {
			return err
		}
		return ledgerapp.Run(ctx, lg, m, cfg)
	})
}
