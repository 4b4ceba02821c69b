package gostore

import (
	"go.uber.org/zap"

	"github.com/arjunk/go-store/internal/config"
)

// Options configures Engine construction. A zero-value Options is valid
// and resolves to config.Default() and a production zap logger.
type Options struct {
	Config config.Config
	Logger *zap.SugaredLogger
}

func (o Options) resolve() (Options, error) {
	if o.Config == (config.Config{}) {
		o.Config = config.Default()
	}
	if o.Logger == nil {
		l, err := zap.NewProduction()
		if err != nil {
			return o, err
		}
		o.Logger = l.Sugar()
	}
	return o, nil
}
