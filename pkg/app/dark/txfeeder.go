package dark

import (
	"context"
	"time"
)

// TxFeederConfig controls the loopback order generator.
type TxFeederConfig struct {
	BatchSize   int           // orders per tick
	Interval    time.Duration // tick period
	NumAccounts int           // simulated traders
	MidTicks    uint64        // centre of the price range
}

func DefaultFeederConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   2,
		Interval:    2 * time.Second,
		NumAccounts: 8,
		MidTicks:    100,
	}
}

// StartTxFeeder pushes generated orders into app's mempool until the
// returned cancel func is called or ctx is done.
func StartTxFeeder(ctx context.Context, app *App, cfg TxFeederConfig) (context.CancelFunc, error) {
	gen, err := NewOrderGenerator(cfg.NumAccounts, app.Markets(), app.MXEPublicKey(), app.cfg.Domain, time.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	if cfg.MidTicks > 0 {
		gen.MidTicks = cfg.MidTicks
	}

	feedCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		start := time.Now()
		total := 0
		app.log.Infow("txfeeder_started", "batch", cfg.BatchSize, "interval", cfg.Interval, "accounts", cfg.NumAccounts)

		for {
			select {
			case <-feedCtx.Done():
				app.log.Infow("txfeeder_stopped", "total", total, "elapsed", time.Since(start).Round(time.Second))
				return
			case <-ticker.C:
				for i := 0; i < cfg.BatchSize; i++ {
					b, err := gen.Random()
					if err != nil {
						app.log.Warnw("txfeeder_generate_failed", "err", err)
						continue
					}
					if app.PushTx(b) {
						total++
					}
				}
			}
		}
	}()
	return cancel, nil
}
