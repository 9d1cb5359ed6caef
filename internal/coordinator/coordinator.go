// Package coordinator owns model residency: which model occupies which
// slot, whether it may be admitted, and the transitions between states.
package coordinator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"modelmgr/internal/device"
	"modelmgr/internal/runtime"
	"modelmgr/pkg/types"
)

// ModelIndex is the catalog slice the coordinator needs.
type ModelIndex interface {
	Get(modelID string) (types.DownloadedModel, error)
	FindByPath(path string) (types.DownloadedModel, bool)
}

// Options configures a Coordinator.
type Options struct {
	Catalog ModelIndex
	Device  device.Info
	// Runtimes per slot; missing slots get the default llama runtime.
	Runtimes  map[types.Slot]runtime.InferenceRuntime
	Publisher EventPublisher
	Logger    zerolog.Logger
}

type pendingOp struct {
	// target model id for loads, "" for unloads
	target string
	done   chan struct{}
	err    error
}

type slotState struct {
	rt      runtime.InferenceRuntime
	modelID string
	pending *pendingOp
}

// Coordinator serializes operations per slot: a request against a busy slot
// queues behind the in-flight operation. Same-target loads coalesce instead,
// sharing the in-flight load's result.
type Coordinator struct {
	mu    sync.Mutex
	slots map[types.Slot]*slotState

	catalog ModelIndex
	device  device.Info
	pub     EventPublisher
	log     zerolog.Logger
}

// New constructs a Coordinator with a text and an image slot.
func New(o Options) *Coordinator {
	c := &Coordinator{
		slots:   make(map[types.Slot]*slotState),
		catalog: o.Catalog,
		device:  o.Device,
		pub:     o.Publisher,
		log:     o.Logger,
	}
	if c.pub == nil {
		c.pub = noopPublisher{}
	}
	for _, slot := range []types.Slot{types.SlotText, types.SlotImage} {
		rt := o.Runtimes[slot]
		if rt == nil {
			rt = runtime.NewLlama(runtime.Options{})
		}
		c.slots[slot] = &slotState{rt: rt}
	}
	return c
}

// LoadPrimary makes modelID resident in the text slot.
func (c *Coordinator) LoadPrimary(ctx context.Context, modelID string, acknowledgeWarning bool) error {
	return c.load(ctx, types.SlotText, modelID, acknowledgeWarning)
}

// LoadSecondary makes modelID resident in the image slot.
func (c *Coordinator) LoadSecondary(ctx context.Context, modelID string, acknowledgeWarning bool) error {
	return c.load(ctx, types.SlotImage, modelID, acknowledgeWarning)
}

func (c *Coordinator) load(ctx context.Context, slot types.Slot, modelID string, ack bool) error {
	c.mu.Lock()
	s := c.slots[slot]
	for s.pending != nil {
		p := s.pending
		c.mu.Unlock()
		if p.target == modelID {
			// coalesce: share the in-flight load's outcome
			select {
			case <-p.done:
				return p.err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// queue behind the in-flight operation, then re-check the slot
		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	if s.modelID == modelID {
		c.mu.Unlock()
		return nil
	}
	p := &pendingOp{target: modelID, done: make(chan struct{})}
	s.pending = p
	c.mu.Unlock()

	err := c.doLoad(ctx, slot, s, modelID, ack)

	c.mu.Lock()
	p.err = err
	s.pending = nil
	c.mu.Unlock()
	close(p.done)
	return err
}

func (c *Coordinator) doLoad(ctx context.Context, slot types.Slot, s *slotState, modelID string, ack bool) error {
	mdl, err := c.catalog.Get(modelID)
	if err != nil {
		return err
	}
	totalGB, err := c.device.TotalMemoryGB()
	if err != nil {
		return err
	}
	check := grade(requiredGB(mdl, slot), totalGB)
	if !check.CanLoad {
		return ErrBlocked(check.Message)
	}
	if check.Severity == types.SeverityWarning && !ack {
		return ErrBlocked(check.Message)
	}

	c.pub.Publish(Event{Name: EventLoadStarted, Slot: slot, ModelID: modelID})

	c.mu.Lock()
	previous := s.modelID
	c.mu.Unlock()
	if previous != "" || s.rt.IsModelLoaded() {
		// best-effort eviction of the current occupant; a failure is
		// surfaced through events but does not stop the load
		c.pub.Publish(Event{Name: EventUnloadStarted, Slot: slot, ModelID: previous})
		if err := s.rt.Unload(ctx); err != nil {
			c.log.Warn().Str("slot", string(slot)).Str("model", previous).Err(err).Msg("swap unload failed")
			c.pub.Publish(Event{
				Name: EventSwapUnloadFailed, Slot: slot, ModelID: previous,
				Fields: map[string]any{"error": err.Error()},
			})
		} else {
			c.pub.Publish(Event{Name: EventUnloadCompleted, Slot: slot, ModelID: previous})
		}
		c.mu.Lock()
		s.modelID = ""
		c.mu.Unlock()
	}

	if err := s.rt.Load(ctx, mdl.Path, mdl.CompanionPath); err != nil {
		c.pub.Publish(Event{
			Name: EventLoadFailed, Slot: slot, ModelID: modelID,
			Fields: map[string]any{"error": err.Error()},
		})
		return err
	}
	c.mu.Lock()
	s.modelID = modelID
	c.mu.Unlock()
	loadsTotal.WithLabelValues(string(slot)).Inc()
	c.log.Info().Str("slot", string(slot)).Str("model", modelID).Msg("model loaded")
	c.pub.Publish(Event{Name: EventLoadCompleted, Slot: slot, ModelID: modelID})
	return nil
}

// UnloadPrimary vacates the text slot.
func (c *Coordinator) UnloadPrimary(ctx context.Context) error {
	_, err := c.unload(ctx, types.SlotText)
	return err
}

// UnloadSecondary vacates the image slot.
func (c *Coordinator) UnloadSecondary(ctx context.Context) error {
	_, err := c.unload(ctx, types.SlotImage)
	return err
}

func (c *Coordinator) unload(ctx context.Context, slot types.Slot) (bool, error) {
	c.mu.Lock()
	s := c.slots[slot]
	for s.pending != nil {
		p := s.pending
		c.mu.Unlock()
		select {
		case <-p.done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		c.mu.Lock()
	}
	if s.modelID == "" && !s.rt.IsModelLoaded() {
		c.mu.Unlock()
		return false, nil
	}
	p := &pendingOp{done: make(chan struct{})}
	s.pending = p
	modelID := s.modelID
	c.mu.Unlock()

	c.pub.Publish(Event{Name: EventUnloadStarted, Slot: slot, ModelID: modelID})
	err := s.rt.Unload(ctx)

	c.mu.Lock()
	if err == nil {
		s.modelID = ""
	}
	p.err = err
	s.pending = nil
	c.mu.Unlock()
	close(p.done)

	if err != nil {
		return false, err
	}
	unloadsTotal.WithLabelValues(string(slot)).Inc()
	c.log.Info().Str("slot", string(slot)).Str("model", modelID).Msg("model unloaded")
	c.pub.Publish(Event{Name: EventUnloadCompleted, Slot: slot, ModelID: modelID})
	return true, nil
}

// UnloadAll vacates both slots, reporting which actually held a model.
// Errors on one slot do not stop the other.
func (c *Coordinator) UnloadAll(ctx context.Context) (types.UnloadAllResponse, error) {
	primary, errText := c.unload(ctx, types.SlotText)
	secondary, errImage := c.unload(ctx, types.SlotImage)
	res := types.UnloadAllResponse{PrimaryUnloaded: primary, SecondaryUnloaded: secondary}
	if errText != nil {
		return res, errText
	}
	return res, errImage
}

// SyncWithRuntimeState adopts residency the runtimes report: a loaded path
// with a catalog entry claims the slot, anything else clears it. Run once at
// startup before state is served.
func (c *Coordinator) SyncWithRuntimeState(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for slot, s := range c.slots {
		path := s.rt.LoadedModelPath()
		if path == "" {
			s.modelID = ""
			continue
		}
		mdl, ok := c.catalog.FindByPath(path)
		if !ok {
			c.log.Warn().Str("slot", string(slot)).Str("path", path).Msg("runtime holds an untracked model")
			s.modelID = ""
			continue
		}
		s.modelID = mdl.ID
	}
}

// ActiveModels reports both slots in a stable order.
func (c *Coordinator) ActiveModels() []types.SlotStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.SlotStatus, 0, 2)
	for _, slot := range []types.Slot{types.SlotText, types.SlotImage} {
		s := c.slots[slot]
		out = append(out, types.SlotStatus{
			Slot:    slot,
			ModelID: s.modelID,
			Busy:    s.pending != nil,
		})
	}
	return out
}

// HasAnyModelLoaded reports whether either slot holds a model.
func (c *Coordinator) HasAnyModelLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.slots {
		if s.modelID != "" {
			return true
		}
	}
	return false
}
