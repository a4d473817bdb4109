package splitcounter

import (
	"fmt"
	"sort"
	"sync"
)

// Transport is a named counter configuration that clients can look up
// instead of building a Config themselves.
type Transport struct {
	Name   string
	Config Config
}

var (
	transportsMu sync.RWMutex
	transports   = make(map[string]Transport)
)

func init() {
	for _, t := range builtinTransports() {
		transports[t.Name] = t
	}
}

func builtinTransports() []Transport {
	perShard := func(w Width) Config {
		cfg := DefaultConfig()
		cfg.Width = w
		return cfg
	}
	global := func(w Width) Config {
		return Config{Width: w, Alloc: AllocGlobalOnly, Sync: SyncGlobal, Arithmetic: ArithmeticWrap}
	}
	return []Transport{
		{Name: "counter-per-shard-32-overflow", Config: perShard(Width32)},
		{Name: "counter-per-shard-64-overflow", Config: perShard(Width64)},
		{Name: "counter-global-32-overflow", Config: global(Width32)},
		{Name: "counter-global-64-overflow", Config: global(Width64)},
	}
}

// RegisterTransport makes t available under t.Name.
func RegisterTransport(t Transport) error {
	if t.Name == "" {
		return fmt.Errorf("%w: transport name cannot be empty", ErrInvalidConfig)
	}
	if err := t.Config.validate(); err != nil {
		return fmt.Errorf("transport %q: %w", t.Name, err)
	}
	transportsMu.Lock()
	defer transportsMu.Unlock()
	if _, exists := transports[t.Name]; exists {
		return fmt.Errorf("%w: %q", ErrTransportExists, t.Name)
	}
	transports[t.Name] = t
	return nil
}

// UnregisterTransport removes the transport registered under name, if any.
func UnregisterTransport(name string) {
	transportsMu.Lock()
	delete(transports, name)
	transportsMu.Unlock()
}

// LookupTransport returns the transport registered under name.
func LookupTransport(name string) (Transport, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	t, ok := transports[name]
	return t, ok
}

// Transports returns the registered transport names in sorted order.
func Transports() []string {
	transportsMu.RLock()
	names := make([]string, 0, len(transports))
	for name := range transports {
		names = append(names, name)
	}
	transportsMu.RUnlock()
	sort.Strings(names)
	return names
}

// NewFromTransport creates a counter using the configuration registered
// under name.
func NewFromTransport(name string, maxNrElem []int64, globalSumStep int64) (*Counter, error) {
	t, ok := LookupTransport(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
	return New(t.Config, maxNrElem, globalSumStep)
}
