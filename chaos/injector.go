package chaos

import (
	"context"
	"log/slog"
	"time"
)

// Injector paces a Generator's output into the engine at a bounded rate.
// It is a plain producer: per-event toggling and all bounds come from the
// event's admission-time configuration.
type Injector struct {
	gen      Generator
	interval time.Duration
	submit   func(Synthetic)
	log      *slog.Logger
}

// NewInjector caps injection at ratePerSec synthetic orders per second.
func NewInjector(gen Generator, ratePerSec float64, submit func(Synthetic), log *slog.Logger) *Injector {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Injector{
		gen:      gen,
		interval: time.Duration(float64(time.Second) / ratePerSec),
		submit:   submit,
		log:      log,
	}
}

func (i *Injector) Run(ctx context.Context) {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.submit(i.gen.Next())
		}
	}
}
