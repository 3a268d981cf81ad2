package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quilang-hardware/hardy/internal/store"
	"github.com/quilang-hardware/hardy/pkg/device"
	"github.com/quilang-hardware/hardy/pkg/live"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: factory not registered")

// Factory signatures accepted by the [Registry].
type (
	LiveFactory       func(AssistantConfig) (live.Provider, error)
	StoreFactory      func(context.Context, StoreConfig) (store.Store, error)
	MicrophoneFactory func(DevicesConfig) (device.Microphone, error)
	SpeakerFactory    func(DevicesConfig) (device.Speaker, error)
	CameraFactory     func(DevicesConfig) (device.Camera, error)
)

// Registry maps configuration names to constructors for the live transport,
// the store driver and each device. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	live        map[ProviderName]LiveFactory
	stores      map[StoreDriver]StoreFactory
	microphones map[Backend]MicrophoneFactory
	speakers    map[Backend]SpeakerFactory
	cameras     map[Backend]CameraFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:        make(map[ProviderName]LiveFactory),
		stores:      make(map[StoreDriver]StoreFactory),
		microphones: make(map[Backend]MicrophoneFactory),
		speakers:    make(map[Backend]SpeakerFactory),
		cameras:     make(map[Backend]CameraFactory),
	}
}

// RegisterLive registers a live transport factory. Subsequent calls with the
// same name overwrite the previous registration.
func (r *Registry) RegisterLive(name ProviderName, f LiveFactory) {
	register(r, r.live, name, f)
}

// RegisterStore registers a store driver factory.
func (r *Registry) RegisterStore(driver StoreDriver, f StoreFactory) {
	register(r, r.stores, driver, f)
}

// RegisterMicrophone registers a microphone backend.
func (r *Registry) RegisterMicrophone(b Backend, f MicrophoneFactory) {
	register(r, r.microphones, b, f)
}

// RegisterSpeaker registers a speaker backend.
func (r *Registry) RegisterSpeaker(b Backend, f SpeakerFactory) {
	register(r, r.speakers, b, f)
}

// RegisterCamera registers a camera backend.
func (r *Registry) RegisterCamera(b Backend, f CameraFactory) {
	register(r, r.cameras, b, f)
}

// CreateLive instantiates the transport named by cfg.Provider.
// Returns [ErrNotRegistered] if no factory has been registered for it.
func (r *Registry) CreateLive(cfg AssistantConfig) (live.Provider, error) {
	f, err := lookup(r, r.live, "assistant", cfg.Provider)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// CreateStore opens the store named by cfg.Driver.
func (r *Registry) CreateStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	f, err := lookup(r, r.stores, "store", cfg.Driver)
	if err != nil {
		return nil, err
	}
	return f(ctx, cfg)
}

// CreateMicrophone returns the configured microphone, or nil for
// [BackendNone].
func (r *Registry) CreateMicrophone(cfg DevicesConfig) (device.Microphone, error) {
	if cfg.Microphone == BackendNone {
		return nil, nil
	}
	f, err := lookup(r, r.microphones, "microphone", cfg.Microphone)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// CreateSpeaker returns the configured speaker, or nil for [BackendNone].
func (r *Registry) CreateSpeaker(cfg DevicesConfig) (device.Speaker, error) {
	if cfg.Speaker == BackendNone {
		return nil, nil
	}
	f, err := lookup(r, r.speakers, "speaker", cfg.Speaker)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

// CreateCamera returns the configured camera, or nil for [BackendNone].
func (r *Registry) CreateCamera(cfg DevicesConfig) (device.Camera, error) {
	if cfg.Camera == BackendNone {
		return nil, nil
	}
	f, err := lookup(r, r.cameras, "camera", cfg.Camera)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

func register[K comparable, F any](r *Registry, m map[K]F, key K, f F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[key] = f
}

func lookup[K comparable, F any](r *Registry, m map[K]F, kind string, key K) (F, error) {
	r.mu.RLock()
	f, ok := m[key]
	r.mu.RUnlock()
	if !ok {
		return f, fmt.Errorf("%w: %s/%q", ErrNotRegistered, kind, fmt.Sprint(key))
	}
	return f, nil
}
