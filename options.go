package rtcore

import "log/slog"

// Option configures a Context during creation.
//
// Example:
//
//	cfg, err := rtcore.LoadConfig("rtcore.toml")
//	...
//	ctx, err := rtcore.NewContext(dev, rtcore.WithConfig(cfg))
type Option func(*contextOptions)

type contextOptions struct {
	config Config
	logger *slog.Logger
}

func defaultOptions() contextOptions {
	return contextOptions{config: DefaultConfig()}
}

// WithConfig sets the configuration. It is validated by NewContext.
func WithConfig(cfg Config) Option {
	return func(o *contextOptions) {
		o.config = cfg
	}
}

// WithLogger installs l as the rtcore logger, see SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *contextOptions) {
		o.logger = l
	}
}
