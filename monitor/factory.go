package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/nikiz24/splitcounter"
	"go.uber.org/zap"
)

// Global monitor instance
var (
	globalManager Manager
	globalEngine  *EngineCollector
	globalMutex   sync.Mutex
)

// Init initializes the global engine monitor. It registers the engine and
// runtime collectors and starts pushing if a remote write URL is set.
func Init(config Config) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	if globalManager != nil {
		return fmt.Errorf("monitor already initialized")
	}

	mgr, err := NewManager(config)
	if err != nil {
		return err
	}
	engine := NewEngineCollector("engine", config.Logger)
	mgr.RegisterCollector(engine)
	mgr.RegisterCollector(NewRuntimeCollector(config.Logger))
	if err := mgr.Start(); err != nil {
		return err
	}
	globalManager, globalEngine = mgr, engine

	if config.Logger != nil {
		config.Logger.Info("monitor system initialized",
			zap.String("namespace", config.Namespace),
			zap.String("subsystem", config.Subsystem),
			zap.String("service", config.ServiceName))
	}
	return nil
}

// Track reports the statistics of c under name. It is a no-op before Init.
func Track(name string, c *splitcounter.Counter) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalEngine != nil {
		globalEngine.Track(name, c)
	}
}

// Untrack stops reporting the counter tracked under name
func Untrack(name string) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalEngine != nil {
		globalEngine.Untrack(name)
	}
}

// RegisterCollector adds a collector to the global manager
func RegisterCollector(collector Collector) error {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalManager == nil {
		return fmt.Errorf("monitor not initialized")
	}
	globalManager.RegisterCollector(collector)
	return nil
}

// Flush pushes the current metrics immediately
func Flush(ctx context.Context) error {
	globalMutex.Lock()
	mgr := globalManager
	globalMutex.Unlock()
	if mgr == nil {
		return fmt.Errorf("monitor not initialized")
	}
	return mgr.Flush(ctx)
}

// Global returns the global manager, or nil before Init
func Global() Manager {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	return globalManager
}

// Shutdown stops the global manager. Init may be called again afterwards.
func Shutdown() {
	globalMutex.Lock()
	mgr := globalManager
	globalManager, globalEngine = nil, nil
	globalMutex.Unlock()
	if mgr != nil {
		mgr.Stop()
	}
}
