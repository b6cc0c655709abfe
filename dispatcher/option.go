package dispatcher

type config struct {
	Workers   int
	QueueSize int
}

var defaultConfig = config{
	Workers:   16,
	QueueSize: 64,
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
	cfg := defaultConfig
	s.apply(&cfg)
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	return cfg
}

// OptionWorkers sets the amount of goroutines executing envelopes.
type OptionWorkers int

func (opt OptionWorkers) apply(cfg *config) {
	cfg.Workers = int(opt)
}

type OptionQueueSize int

func (opt OptionQueueSize) apply(cfg *config) {
	cfg.QueueSize = int(opt)
}
