// Package metrics provides process-wide counters for the render pipeline.
//
// The Collector accumulates counters for the lifetime of the server. It is a
// leaf package with no internal dependencies; callers record events as they
// happen and read a Snapshot for the stats endpoint.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all pipeline metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Requests
	Requests           int64 `json:"requests"`
	ValidationFailures int64 `json:"validation_failures"`

	// Cache
	CacheHits       int64 `json:"cache_hits"`
	CacheMisses     int64 `json:"cache_misses"`
	CacheEvictions  int64 `json:"cache_evictions"`
	ArtifactMissing int64 `json:"artifact_missing"`

	// Render
	RendersStarted   int64            `json:"renders_started"`
	RendersSucceeded int64            `json:"renders_succeeded"`
	RendersFailed    int64            `json:"renders_failed"`
	RendersCollapsed int64            `json:"renders_collapsed"`
	FailedByStage    map[string]int64 `json:"failed_by_stage,omitempty"`
	OpenSessions     int64            `json:"open_sessions"`

	// Offload
	OffloadSubmitted int64 `json:"offload_submitted"`
	OffloadSucceeded int64 `json:"offload_succeeded"`
	OffloadFailed    int64 `json:"offload_failed"`

	// Dimensions (informational, set at construction)
	StorageBackend string `json:"storage_backend"`
	InstanceID     string `json:"instance_id"`
}

// Collector accumulates pipeline metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	requests           int64
	validationFailures int64

	cacheHits       int64
	cacheMisses     int64
	cacheEvictions  int64
	artifactMissing int64

	rendersStarted   int64
	rendersSucceeded int64
	rendersFailed    int64
	rendersCollapsed int64
	failedByStage    map[string]int64
	openSessions     int64

	offloadSubmitted int64
	offloadSucceeded int64
	offloadFailed    int64

	storageBackend string
	instanceID     string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(storageBackend, instanceID string) *Collector {
	return &Collector{
		failedByStage:  make(map[string]int64),
		storageBackend: storageBackend,
		instanceID:     instanceID,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Requests ---

// IncRequest records an inbound chart request.
func (c *Collector) IncRequest() {
	if c == nil {
		return
	}
	c.inc(&c.requests)
}

// IncValidationFailure records a query rejected by the codec.
func (c *Collector) IncValidationFailure() {
	if c == nil {
		return
	}
	c.inc(&c.validationFailures)
}

// --- Cache ---

// IncCacheHit records a request served from an existing artifact.
func (c *Collector) IncCacheHit() {
	if c == nil {
		return
	}
	c.inc(&c.cacheHits)
}

// IncCacheMiss records a request that required a render.
func (c *Collector) IncCacheMiss() {
	if c == nil {
		return
	}
	c.inc(&c.cacheMisses)
}

// IncCacheEviction records an index entry evicted by capacity.
func (c *Collector) IncCacheEviction() {
	if c == nil {
		return
	}
	c.inc(&c.cacheEvictions)
}

// IncArtifactMissing records an index entry whose artifact was gone.
func (c *Collector) IncArtifactMissing() {
	if c == nil {
		return
	}
	c.inc(&c.artifactMissing)
}

// --- Render ---

// IncRenderStarted records a render handed to the session manager.
func (c *Collector) IncRenderStarted() {
	if c == nil {
		return
	}
	c.inc(&c.rendersStarted)
}

// IncRenderSucceeded records a render whose artifact was written.
func (c *Collector) IncRenderSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.rendersSucceeded)
}

// IncRenderFailed records a failed render at the given stage.
func (c *Collector) IncRenderFailed(stage string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.rendersFailed++
	if stage != "" {
		c.failedByStage[stage]++
	}
	c.mu.Unlock()
}

// IncRenderCollapsed records a miss that joined an in-flight render.
func (c *Collector) IncRenderCollapsed() {
	if c == nil {
		return
	}
	c.inc(&c.rendersCollapsed)
}

// SessionOpened increments the open-session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.inc(&c.openSessions)
}

// SessionClosed decrements the open-session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.openSessions--
	c.mu.Unlock()
}

// --- Offload ---

// IncOffloadSubmitted records a work item accepted by the pool.
func (c *Collector) IncOffloadSubmitted() {
	if c == nil {
		return
	}
	c.inc(&c.offloadSubmitted)
}

// IncOffloadSucceeded records a work item that resolved.
func (c *Collector) IncOffloadSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.offloadSucceeded)
}

// IncOffloadFailed records a work item that was rejected.
func (c *Collector) IncOffloadFailed() {
	if c == nil {
		return
	}
	c.inc(&c.offloadFailed)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be modified without affecting it.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byStage := make(map[string]int64, len(c.failedByStage))
	for k, v := range c.failedByStage {
		byStage[k] = v
	}

	return Snapshot{
		Requests:           c.requests,
		ValidationFailures: c.validationFailures,
		CacheHits:          c.cacheHits,
		CacheMisses:        c.cacheMisses,
		CacheEvictions:     c.cacheEvictions,
		ArtifactMissing:    c.artifactMissing,
		RendersStarted:     c.rendersStarted,
		RendersSucceeded:   c.rendersSucceeded,
		RendersFailed:      c.rendersFailed,
		RendersCollapsed:   c.rendersCollapsed,
		FailedByStage:      byStage,
		OpenSessions:       c.openSessions,
		OffloadSubmitted:   c.offloadSubmitted,
		OffloadSucceeded:   c.offloadSucceeded,
		OffloadFailed:      c.offloadFailed,
		StorageBackend:     c.storageBackend,
		InstanceID:         c.instanceID,
	}
}
