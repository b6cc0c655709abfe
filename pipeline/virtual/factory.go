package virtual

import (
	"context"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/xsync"
)

type Factory struct {
	Config Config

	locker    xsync.Mutex
	pipelines []*Pipeline
}

var _ pipeline.Factory = (*Factory)(nil)

func NewFactory(cfg Config) *Factory {
	return &Factory{Config: cfg}
}

func (f *Factory) NewPipeline(
	ctx context.Context,
	cfg pipeline.Config,
) (pipeline.Pipeline, error) {
	logger.Debugf(ctx, "NewPipeline(%s)", cfg.Name)
	p := newPipeline(cfg, f.Config)
	f.locker.Do(ctx, func() {
		f.pipelines = append(f.pipelines, p)
	})
	return p, nil
}

// Pipelines returns every pipeline built by the factory, oldest first.
func (f *Factory) Pipelines() []*Pipeline {
	return xsync.DoR1(context.Background(), &f.locker, func() []*Pipeline {
		return append([]*Pipeline(nil), f.pipelines...)
	})
}

// Last returns the most recently built pipeline.
func (f *Factory) Last() *Pipeline {
	all := f.Pipelines()
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}
