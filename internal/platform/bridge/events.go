package bridge

import (
	"context"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/innospot/runtime/internal/platform"
	"github.com/innospot/runtime/internal/types"
)

// OnEvent registers a platform event handler. Handlers run on the bridge
// read loop, so same-kind events arrive in emission order.
func (b *Bridge) OnEvent(h platform.Handler) (remove func()) {
	b.handlerMu.Lock()
	idx := b.nextHandler
	b.nextHandler++
	b.handlers[idx] = h
	b.handlerMu.Unlock()

	return func() {
		b.handlerMu.Lock()
		delete(b.handlers, idx)
		b.handlerMu.Unlock()
	}
}

// prompt is the one-shot install prompt captured from a
// beforeinstallprompt event
type prompt struct {
	b  *Bridge
	id string
}

func (p *prompt) Show(ctx context.Context) (types.PromptOutcome, error) {
	var out struct {
		Outcome types.PromptOutcome `json:"outcome"`
	}
	params := map[string]interface{}{"prompt_id": p.id}
	if err := p.b.call(ctx, "prompt.show", params, &out); err != nil {
		return types.OutcomeDismissed, err
	}
	return out.Outcome, nil
}

func (b *Bridge) dispatchEvent(f frame) {
	evt := platform.Event{Kind: platform.EventKind(f.Event)}

	switch evt.Kind {
	case platform.EventBeforeInstallPrompt:
		var data struct {
			PromptID string `json:"prompt_id"`
		}
		if err := sonic.Unmarshal(f.Data, &data); err != nil || data.PromptID == "" {
			b.log.Warn("install prompt event missing prompt_id", zap.Error(err))
			return
		}
		evt.Prompt = &prompt{b: b, id: data.PromptID}

	case platform.EventWorkerStateChange:
		var states types.WorkerStates
		if err := sonic.Unmarshal(f.Data, &states); err != nil {
			b.log.Warn("worker state event decode failed", zap.Error(err))
			return
		}
		evt.States = &states

	case platform.EventConnectionChange:
		var profile types.NetworkProfile
		if err := sonic.Unmarshal(f.Data, &profile); err != nil {
			b.log.Warn("connection change event decode failed", zap.Error(err))
			return
		}
		evt.Network = &profile

	case platform.EventOnline, platform.EventOffline, platform.EventAppInstalled,
		platform.EventControllerChange, platform.EventVisible:
		// no payload

	default:
		b.log.Debug("ignoring unknown platform event", zap.String("event", f.Event))
		return
	}

	b.handlerMu.Lock()
	handlers := make([]platform.Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.handlerMu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}
