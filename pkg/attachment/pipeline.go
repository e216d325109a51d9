// Package attachment saves uploaded files into allocator-managed directory trees.
//
// A Pipeline holds the shared collaborators: the slot allocator, the template
// engine, the filesystem writer and the processor registry. Each record gets an
// Attachment bound to the storage settings of its kind.
package attachment

import (
	"clusterfs/pkg/cluster"
	"clusterfs/pkg/config"
	"clusterfs/pkg/interpolate"
	"clusterfs/pkg/metrics"
	"clusterfs/pkg/processor"
	"clusterfs/pkg/store"
	"clusterfs/pkg/store/disk"
)

// Pipeline saves attachments for any number of records.
type Pipeline struct {
	allocator *cluster.Allocator
	engine    *interpolate.Engine
	storage   config.StorageConfig
	files     store.Store
	registry  *processor.Registry
	metrics   *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore replaces the filesystem writer.
func WithStore(files store.Store) Option {
	return func(p *Pipeline) {
		p.files = files
	}
}

// WithRegistry replaces the processor registry.
func WithRegistry(registry *processor.Registry) Option {
	return func(p *Pipeline) {
		p.registry = registry
	}
}

// WithMetrics records saves in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// NewPipeline creates a pipeline writing to disk with the built-in processors.
func NewPipeline(allocator *cluster.Allocator, engine *interpolate.Engine, storage config.StorageConfig, opts ...Option) *Pipeline {
	pipeline := &Pipeline{
		allocator: allocator,
		engine:    engine,
		storage:   storage,
		files:     disk.New(),
		registry:  processor.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(pipeline)
	}
	return pipeline
}

// For binds record to the settings of its kind.
func (p *Pipeline) For(record Record) *Attachment {
	return &Attachment{
		pipeline: p,
		record:   record,
		settings: p.storage.For(record.Kind()),
	}
}

// Settings returns the merged storage settings of kind.
func (p *Pipeline) Settings(kind string) config.Storage {
	return p.storage.For(kind)
}
