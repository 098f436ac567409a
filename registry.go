package pipe

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/pipe/alloc"
	"github.com/gogpu/pipe/config"
)

// Registry errors.
var (
	// ErrUnknownDriver is returned when the requested driver is not
	// registered.
	ErrUnknownDriver = errors.New("pipe: unknown driver")

	// ErrNoDriver is returned when no registered driver could create a
	// screen.
	ErrNoDriver = errors.New("pipe: no driver available")
)

// Factory creates a screen from an allocator and the resolved options. A
// nil allocator asks the driver for its default.
type Factory func(a alloc.Allocator, o *Options) (Screen, error)

// DriverInfo describes a registered driver.
type DriverInfo struct {
	Name     string
	Priority int
}

type driver struct {
	priority int
	factory  Factory
}

var (
	registryMu sync.RWMutex
	drivers    = make(map[string]driver)
)

// Register registers a driver factory. Higher priorities are tried first
// when no driver is named. This is typically called from init() functions
// in driver packages; registering a name again replaces it.
func Register(name string, priority int, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	drivers[name] = driver{priority: priority, factory: factory}
}

// Unregister removes a driver. This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(drivers, name)
}

// Drivers returns the registered drivers, highest priority first and by
// name among equal priorities.
func Drivers() []DriverInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]DriverInfo, 0, len(drivers))
	for name, d := range drivers {
		out = append(out, DriverInfo{Name: name, Priority: d.priority})
	}
	slices.SortFunc(out, func(a, b DriverInfo) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

func lookupDriver(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := drivers[name]
	return d.factory, ok
}

// CreateScreen creates a screen on allocator a, or on the driver's default
// allocator when a is nil. Without a named driver every registered driver
// is tried in priority order and the first that succeeds is returned.
func CreateScreen(a alloc.Allocator, opts ...Option) (Screen, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger != nil {
		SetLogger(o.Logger)
	}
	if err := o.Config.Validate(); err != nil {
		return nil, err
	}

	name := o.Driver
	if name == "" {
		name = o.Config.Driver
	}
	if name != "" && name != config.DriverAuto {
		factory, ok := lookupDriver(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
		}
		s, err := factory(a, &o)
		if err != nil {
			return nil, fmt.Errorf("pipe: create %s screen: %w", name, err)
		}
		Logger().Info("pipe: screen created", "driver", name)
		return s, nil
	}

	var errs []error
	for _, info := range Drivers() {
		factory, ok := lookupDriver(info.Name)
		if !ok {
			continue
		}
		s, err := factory(a, &o)
		if err != nil {
			Logger().Debug("pipe: driver unavailable", "driver", info.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", info.Name, err))
			continue
		}
		Logger().Info("pipe: screen created", "driver", info.Name)
		return s, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoDriver, errors.Join(errs...))
}
