package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// memoryPressureBytes is the heap size above which the node reports degraded
const memoryPressureBytes = 2 << 30 // 2 GiB

// goroutineCeiling is the goroutine count above which the node reports degraded
const goroutineCeiling = 10000

// CheckResult represents the result of a single health check
type CheckResult struct {
	Name      string
	Status    string
	Message   string
	Timestamp time.Time
}

// Checker performs periodic health checks for the stream node. The engine
// probe is injected so the checker stays decoupled from the service layer.
type Checker struct {
	nodeID      string
	engineProbe func(context.Context) error
	logger      *zap.Logger

	mu          sync.RWMutex
	lastCheck   time.Time
	checks      map[string]CheckResult
	livenessOK  bool
	readinessOK bool
}

// NewChecker creates a new health checker. engineProbe should exercise a
// cheap engine operation and return its error.
func NewChecker(nodeID string, engineProbe func(context.Context) error, logger *zap.Logger) *Checker {
	return &Checker{
		nodeID:      nodeID,
		engineProbe: engineProbe,
		logger:      logger,
		checks:      make(map[string]CheckResult),
		livenessOK:  true,
		readinessOK: true,
	}
}

// Start runs health checks every 10 seconds until ctx is canceled
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	c.Run(ctx)

	for {
		select {
		case <-ticker.C:
			c.Run(ctx)
		case <-ctx.Done():
			c.logger.Info("Health checker stopped")
			return
		}
	}
}

// Run executes all health checks once
func (c *Checker) Run(ctx context.Context) {
	results := []CheckResult{
		c.checkEngine(ctx),
		c.checkMemoryPressure(),
		c.checkGoroutines(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastCheck = time.Now()
	allReady := true
	for _, result := range results {
		c.checks[result.Name] = result
		if result.Status == "critical" {
			allReady = false
		}
	}

	// Liveness holds as long as the checker itself can run.
	c.livenessOK = true
	c.readinessOK = allReady
}

// Healthy reports process liveness
func (c *Checker) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.livenessOK
}

// Ready reports whether the node should receive traffic
func (c *Checker) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readinessOK
}

// Report returns a copy of the latest check results
func (c *Checker) Report() map[string]CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]CheckResult, len(c.checks))
	for name, result := range c.checks {
		out[name] = result
	}
	return out
}

func (c *Checker) checkEngine(ctx context.Context) CheckResult {
	result := CheckResult{Name: "engine", Status: "healthy", Timestamp: time.Now()}

	if err := c.engineProbe(ctx); err != nil {
		result.Status = "critical"
		result.Message = err.Error()
		c.logger.Warn("Engine probe failed", zap.Error(err))
	}
	return result
}

func (c *Checker) checkMemoryPressure() CheckResult {
	result := CheckResult{Name: "memory", Status: "healthy", Timestamp: time.Now()}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapInuse > memoryPressureBytes {
		result.Status = "degraded"
		result.Message = "heap usage above threshold"
	}
	return result
}

func (c *Checker) checkGoroutines() CheckResult {
	result := CheckResult{Name: "goroutines", Status: "healthy", Timestamp: time.Now()}

	if runtime.NumGoroutine() > goroutineCeiling {
		result.Status = "degraded"
		result.Message = "goroutine count above threshold"
	}
	return result
}
