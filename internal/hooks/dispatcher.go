package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/observability"
	"github.com/slashbot/slashbot/pkg/models"
)

// Observability event types emitted on the bus.
const (
	BusHookRegistered = "hook:registered"
	BusDispatchStart  = "hook:dispatch_start"
	BusInvokeStart    = "hook:invoke_start"
	BusInvokeSuccess  = "hook:invoke_success"
	BusInvokeFailure  = "hook:invoke_failure"
	BusDispatchEnd    = "hook:dispatch_end"
)

// Dispatcher owns hook registrations and runs dispatches. Hooks within one
// dispatch run strictly sequentially in deterministic order; concurrent
// dispatches may interleave handler invocations.
type Dispatcher struct {
	mu             sync.RWMutex
	registrations  map[string][]*Registration // domain/event -> hooks
	byID           map[string]*Registration
	nextSeq        int
	defaultTimeout time.Duration
	logger         *slog.Logger
	bus            *bus.Bus
	metrics        *observability.Metrics
}

// NewDispatcher creates a dispatcher. The bus is optional; when nil,
// observability events are skipped.
func NewDispatcher(defaultTimeout time.Duration, logger *slog.Logger, eventBus *bus.Bus, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &Dispatcher{
		registrations:  make(map[string][]*Registration),
		byID:           make(map[string]*Registration),
		defaultTimeout: defaultTimeout,
		logger:         logger.With("component", "hooks"),
		bus:            eventBus,
		metrics:        metrics,
	}
}

func dispatchKey(domain Domain, event string) string {
	return string(domain) + "/" + event
}

// Register adds a hook and returns its registration id.
func (d *Dispatcher) Register(reg Registration) string {
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}

	d.mu.Lock()
	reg.seq = d.nextSeq
	d.nextSeq++
	stored := &reg
	key := dispatchKey(reg.Domain, reg.Event)
	d.registrations[key] = append(d.registrations[key], stored)
	d.byID[reg.ID] = stored
	d.mu.Unlock()

	d.logger.Debug("registered hook",
		"id", reg.ID,
		"plugin", reg.PluginID,
		"domain", reg.Domain,
		"event", reg.Event,
		"priority", reg.effectivePriority())

	d.emit(BusHookRegistered, Payload{
		"hookId":   reg.ID,
		"pluginId": reg.PluginID,
		"domain":   string(reg.Domain),
		"event":    reg.Event,
	})

	return reg.ID
}

// Unregister removes a hook by registration id.
func (d *Dispatcher) Unregister(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg, exists := d.byID[id]
	if !exists {
		return false
	}
	delete(d.byID, id)

	key := dispatchKey(reg.Domain, reg.Event)
	list := d.registrations[key]
	for i, r := range list {
		if r.ID == id {
			d.registrations[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return true
}

// UnregisterPlugin removes every hook owned by a plugin and returns how
// many were removed.
func (d *Dispatcher) UnregisterPlugin(pluginID string) int {
	d.mu.RLock()
	var ids []string
	for id, reg := range d.byID {
		if reg.PluginID == pluginID {
			ids = append(ids, id)
		}
	}
	d.mu.RUnlock()

	for _, id := range ids {
		d.Unregister(id)
	}
	return len(ids)
}

// HookCount returns the number of hooks registered for (domain, event).
func (d *Dispatcher) HookCount(domain Domain, event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.registrations[dispatchKey(domain, event)])
}

// selected returns the matching hooks in dispatch order: ascending
// priority, ties broken by ascending registration order. The order never
// depends on map iteration.
func (d *Dispatcher) selected(domain Domain, event string) []*Registration {
	d.mu.RLock()
	list := append([]*Registration(nil), d.registrations[dispatchKey(domain, event)]...)
	d.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		pi, pj := list[i].effectivePriority(), list[j].effectivePriority()
		if pi != pj {
			return pi < pj
		}
		return list[i].seq < list[j].seq
	})
	return list
}

// Dispatch runs all hooks matching (domain, event) over payload and
// returns the initial payload, the final merged payload, and any failures.
func (d *Dispatcher) Dispatch(ctx context.Context, domain Domain, event string, payload Payload) Report {
	if payload == nil {
		payload = Payload{}
	}
	initial := payload.Clone()
	working := payload.Clone()

	hooks := d.selected(domain, event)

	if d.metrics != nil {
		d.metrics.HookDispatches.WithLabelValues(string(domain), event).Inc()
	}
	d.emit(BusDispatchStart, Payload{
		"domain":  string(domain),
		"event":   event,
		"hooks":   len(hooks),
		"payload": map[string]any(initial),
	})

	var failures []Failure
	for _, reg := range hooks {
		d.emit(BusInvokeStart, Payload{
			"hookId":   reg.ID,
			"pluginId": reg.PluginID,
			"domain":   string(domain),
			"event":    event,
		})

		start := time.Now()
		patch, timedOut, err := d.invoke(ctx, reg, working.Clone())
		elapsed := time.Since(start)

		if err != nil || timedOut {
			failure := Failure{
				PluginID: reg.PluginID,
				HookID:   reg.ID,
				Domain:   domain,
				Event:    event,
				Elapsed:  elapsed.Milliseconds(),
				TimedOut: timedOut,
			}
			if err != nil {
				failure.Message = err.Error()
			} else {
				failure.Message = "hook timed out after " + reg.timeoutOr(d.defaultTimeout).String()
			}
			failures = append(failures, failure)

			if d.metrics != nil {
				d.metrics.HookFailures.WithLabelValues(string(domain), event, strconv.FormatBool(timedOut)).Inc()
			}
			d.logger.Warn("hook failure",
				"hook", reg.ID,
				"plugin", reg.PluginID,
				"domain", domain,
				"event", event,
				"timed_out", timedOut,
				"error", failure.Message)
			d.emit(BusInvokeFailure, Payload{
				"hookId":   reg.ID,
				"pluginId": reg.PluginID,
				"domain":   string(domain),
				"event":    event,
				"timedOut": timedOut,
				"message":  failure.Message,
			})
			continue
		}

		// Merge the returned partial payload, top-level only.
		for k, v := range patch {
			working[k] = v
		}

		d.emit(BusInvokeSuccess, Payload{
			"hookId":    reg.ID,
			"pluginId":  reg.PluginID,
			"domain":    string(domain),
			"event":     event,
			"elapsedMs": elapsed.Milliseconds(),
		})
	}

	d.emit(BusDispatchEnd, Payload{
		"domain":   string(domain),
		"event":    event,
		"failures": len(failures),
		"payload":  map[string]any(working),
	})

	return Report{Initial: initial, Final: working, Failures: failures}
}

func (r *Registration) timeoutOr(fallback time.Duration) time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return fallback
}

type invokeResult struct {
	patch Payload
	err   error
}

// invoke runs one handler under its timeout. On timeout the handler's
// goroutine is abandoned and its eventual result discarded.
func (d *Dispatcher) invoke(ctx context.Context, reg *Registration, payload Payload) (Payload, bool, error) {
	timeout := reg.timeoutOr(d.defaultTimeout)

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- invokeResult{err: fmt.Errorf("hook panic: %v", p)}
			}
		}()
		patch, err := reg.Handler(ctx, payload)
		done <- invokeResult{patch: patch, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.patch, false, res.err
	case <-timer.C:
		return nil, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// emit publishes a size-capped observability event; emission failures are
// swallowed.
func (d *Dispatcher) emit(eventType string, payload Payload) {
	if d.bus == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	d.bus.Publish(models.NewEnvelope(eventType, capValue(map[string]any(payload), 0)))
}
