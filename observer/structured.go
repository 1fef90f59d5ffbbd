package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"time"
)

// JSONObserver emits one JSON line per event, grounded directly on the
// teacher's observer/structured.go (log.Logger + map[string]any payload),
// generalized from agent/LLM-loop events to the supervisor's own.
type JSONObserver struct {
	logger *log.Logger
}

// NewJSONObserver returns a JSONObserver writing to out (io.Discard if nil).
func NewJSONObserver(out io.Writer) *JSONObserver {
	if out == nil {
		out = io.Discard
	}
	return &JSONObserver{logger: log.New(out, "", 0)}
}

func (o *JSONObserver) OnTickStart(ctx context.Context, chatID string, newMessages int) {
	o.log("tick_start", map[string]any{"chat_id": chatID, "new_messages": newMessages})
}

func (o *JSONObserver) OnTickEnd(ctx context.Context, chatID string, dispatched int, err error) {
	fields := map[string]any{"chat_id": chatID, "dispatched": dispatched}
	if err != nil {
		fields["error"] = err.Error()
	}
	o.log("tick_end", fields)
}

func (o *JSONObserver) OnLLMCall(ctx context.Context, component, model string, dur time.Duration, err error) {
	fields := map[string]any{"component": component, "model": model, "duration_ms": dur.Milliseconds()}
	if err != nil {
		fields["error"] = err.Error()
		o.log("llm_error", fields)
		return
	}
	o.log("llm_call", fields)
}

func (o *JSONObserver) OnNodeTransition(ctx context.Context, persona, from, to string) {
	o.log("node_transition", map[string]any{"persona": persona, "from": from, "to": to})
}

func (o *JSONObserver) OnSuspend(ctx context.Context, chatID string, pending int) {
	o.log("suspend", map[string]any{"chat_id": chatID, "pending": pending})
}

func (o *JSONObserver) OnResume(ctx context.Context, chatID string, decisions int) {
	o.log("resume", map[string]any{"chat_id": chatID, "decisions": decisions})
}

func (o *JSONObserver) OnError(ctx context.Context, component string, err error) {
	if err == nil {
		return
	}
	o.log("error", map[string]any{"component": component, "error": err.Error()})
}

func (o *JSONObserver) log(event string, fields map[string]any) {
	payload := map[string]any{"ts": time.Now().Format(time.RFC3339Nano), "event": event}
	for k, v := range fields {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.Printf("{\"event\":\"error\",\"error\":%q}", err.Error())
		return
	}
	o.logger.Print(string(data))
}
