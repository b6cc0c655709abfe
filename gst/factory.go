// Package gst is a GStreamer backend of the inner pipeline:
//
//	appsrc ! decodebin ! [videoconvert ! videoflip !] appsink
//
// with one appsink branch per exposed stream.
package gst

import (
	"context"
	"sync"

	"github.com/go-gst/go-gst/gst"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
)

type Config struct {
	// BusPollInterval is how long the bus watch waits for a message
	// before checking whether the pipeline is closed.
	BusPollInterval gst.ClockTime

	// FlipVideo controls the vertical flip in front of video sinks
	// requesting normalization; bottom-up frames are the graph default.
	FlipVideo bool
}

func DefaultConfig() Config {
	return Config{
		BusPollInterval: gst.ClockTime(100 * 1000 * 1000),
		FlipVideo:       true,
	}
}

type Factory struct {
	Config Config
}

var _ pipeline.Factory = (*Factory)(nil)

var initOnce sync.Once

func NewFactory(cfg Config) *Factory {
	initOnce.Do(func() {
		gst.Init(nil)
	})
	return &Factory{Config: cfg}
}

func (f *Factory) NewPipeline(
	ctx context.Context,
	cfg pipeline.Config,
) (_ret pipeline.Pipeline, _err error) {
	logger.Debugf(ctx, "NewPipeline(%s)", cfg.Name)
	defer func() { logger.Debugf(ctx, "/NewPipeline(%s): %v", cfg.Name, _err) }()
	p, err := newPipeline(ctx, cfg, f.Config)
	if err != nil {
		return nil, err
	}
	return p, nil
}
