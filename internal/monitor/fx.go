package monitor

import (
	"context"

	"github.com/watchkeep/watchkeep/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("monitor",
	fx.Provide(ProvideRulesHolder),
	fx.Provide(New),
	fx.Invoke(Register),
)

func ProvideRulesHolder(cfg config.Config, log *zap.Logger) (*RulesHolder, error) {
	return NewRulesHolder(cfg.MonitorRulesFile, log)
}

// Register starts the monitor loop when the app starts and cancels it on
// shutdown. A non-positive interval disables the loop.
func Register(lc fx.Lifecycle, cfg config.Config, m *Monitor) {
	if cfg.MonitorInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go m.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
