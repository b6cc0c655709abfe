package avbridge

import (
	"time"

	"github.com/xaionaro-go/avbridge/dispatcher"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/reader"
)

type config struct {
	PipelineFactory    pipeline.Factory
	Dispatcher         *dispatcher.Dispatcher
	DispatcherOptions  []dispatcher.Option
	DiscoveryTimeout   time.Duration
	StateChangeTimeout time.Duration
	DefaultAllocator   pool.Properties
	Blacklist          []string
	AsyncReadTimeout   time.Duration
	PreferPush         bool
}

// defaultBlacklist lists decoders known to misbehave outside of the
// environment they were made for.
var defaultBlacklist = []string{
	// the a/52 decoder tied to a single host player
	"Player protection",
	"Fluendo Hardware Accelerated Video Decoder",
}

func defaultConfig() config {
	return config{
		DefaultAllocator: pool.DefaultProperties,
		Blacklist:        append([]string(nil), defaultBlacklist...),
		AsyncReadTimeout: reader.Infinite,
	}
}

type Option interface {
	apply(*config)
}

type Options []Option

func (s Options) apply(cfg *config) {
	for _, opt := range s {
		opt.apply(cfg)
	}
}

func (s Options) config() config {
	cfg := defaultConfig()
	s.apply(&cfg)
	if cfg.DefaultAllocator == (pool.Properties{}) {
		cfg.DefaultAllocator = pool.DefaultProperties
	}
	return cfg
}

// OptionPipelineFactory sets the backend building the inner pipeline.
type OptionPipelineFactory struct {
	Factory pipeline.Factory
}

func (opt OptionPipelineFactory) apply(cfg *config) {
	cfg.PipelineFactory = opt.Factory
}

// OptionDispatcher makes the filter use the given dispatcher instead of
// the process-wide one.
type OptionDispatcher struct {
	Dispatcher *dispatcher.Dispatcher
}

func (opt OptionDispatcher) apply(cfg *config) {
	cfg.Dispatcher = opt.Dispatcher
}

// OptionDispatcherOptions are used if this filter is the one creating the
// process-wide dispatcher.
type OptionDispatcherOptions []dispatcher.Option

func (opt OptionDispatcherOptions) apply(cfg *config) {
	cfg.DispatcherOptions = append(cfg.DispatcherOptions, opt...)
}

// OptionDiscoveryTimeout bounds the wait for the initial streams on
// Connect. Zero means no bound.
type OptionDiscoveryTimeout time.Duration

func (opt OptionDiscoveryTimeout) apply(cfg *config) {
	cfg.DiscoveryTimeout = time.Duration(opt)
}

// OptionStateChangeTimeout bounds the wait for the pipeline to
// acknowledge a state change. Zero means no bound.
type OptionStateChangeTimeout time.Duration

func (opt OptionStateChangeTimeout) apply(cfg *config) {
	cfg.StateChangeTimeout = time.Duration(opt)
}

// OptionDefaultAllocator is the input pool geometry used when the upstream
// has no preference.
type OptionDefaultAllocator pool.Properties

func (opt OptionDefaultAllocator) apply(cfg *config) {
	cfg.DefaultAllocator = pool.Properties(opt)
}

// OptionBlacklist adds decoder name patterns to refuse on autoplugging.
type OptionBlacklist []string

func (opt OptionBlacklist) apply(cfg *config) {
	cfg.Blacklist = append(cfg.Blacklist, opt...)
}

type OptionAsyncReadTimeout time.Duration

func (opt OptionAsyncReadTimeout) apply(cfg *config) {
	cfg.AsyncReadTimeout = time.Duration(opt)
}

// OptionPreferPush makes the pipeline be fed by the push thread even if
// it could pull.
type OptionPreferPush bool

func (opt OptionPreferPush) apply(cfg *config) {
	cfg.PreferPush = bool(opt)
}
