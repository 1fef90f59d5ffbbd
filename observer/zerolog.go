package observer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ZerologObserver is the production default Observer, grounded on
// intelligencedev-manifold's zerolog-based structured logging.
type ZerologObserver struct {
	log zerolog.Logger
}

// NewZerologObserver wraps an existing zerolog.Logger.
func NewZerologObserver(logger zerolog.Logger) *ZerologObserver {
	return &ZerologObserver{log: logger.With().Str("component", "supervisor").Logger()}
}

func (z *ZerologObserver) OnTickStart(ctx context.Context, chatID string, newMessages int) {
	z.log.Info().Str("chat_id", chatID).Int("new_messages", newMessages).Msg("tick start")
}

func (z *ZerologObserver) OnTickEnd(ctx context.Context, chatID string, dispatched int, err error) {
	ev := z.log.Info()
	if err != nil {
		ev = z.log.Error().Err(err)
	}
	ev.Str("chat_id", chatID).Int("dispatched", dispatched).Msg("tick end")
}

func (z *ZerologObserver) OnLLMCall(ctx context.Context, component, model string, dur time.Duration, err error) {
	ev := z.log.Debug()
	if err != nil {
		ev = z.log.Warn().Err(err)
	}
	ev.Str("llm_component", component).Str("model", model).Dur("duration", dur).Msg("llm call")
}

func (z *ZerologObserver) OnNodeTransition(ctx context.Context, persona, from, to string) {
	z.log.Debug().Str("persona", persona).Str("from", from).Str("to", to).Msg("node transition")
}

func (z *ZerologObserver) OnSuspend(ctx context.Context, chatID string, pending int) {
	z.log.Info().Str("chat_id", chatID).Int("pending", pending).Msg("suspended for approval")
}

func (z *ZerologObserver) OnResume(ctx context.Context, chatID string, decisions int) {
	z.log.Info().Str("chat_id", chatID).Int("decisions", decisions).Msg("resumed after approval")
}

func (z *ZerologObserver) OnError(ctx context.Context, component string, err error) {
	if err == nil {
		return
	}
	z.log.Error().Str("component", component).Err(err).Msg("error")
}
