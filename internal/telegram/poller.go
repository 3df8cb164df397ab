package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	pollInitialDelay = 5 * time.Second
	pollInterval     = time.Second
	pollTimeout      = 30
)

// Poller consume actualizaciones del bot via long polling. Las
// actualizaciones se procesan en orden y de a una; el offset avanza recien
// cuando el lote entero fue manejado.
type Poller struct {
	logger *zap.Logger
	api    BotAPI
	linker *LinkService
}

func NewPoller(logger *zap.Logger, api BotAPI, linker *LinkService) *Poller {
	return &Poller{logger: logger, api: api, linker: linker}
}

// Run bloquea hasta que el contexto se cancele. La primera consulta espera
// 5 segundos para dejar arrancar al resto del proceso.
func (p *Poller) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(pollInitialDelay):
	}

	var offset int64
	for {
		updates, err := p.api.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("get updates failed", zap.Error(err))
		}
		for _, update := range updates {
			p.linker.HandleUpdate(ctx, update)
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}
