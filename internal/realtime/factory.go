package realtime

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options selects and configures a Bus backend.
type Options struct {
	Backend string
	Prefix  string
	Redis   *redis.Client
	NATSURL string
}

// New builds the Bus named by opts.Backend.
func New(opts Options, logger *zap.Logger) (Bus, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryBus(), nil
	case BackendRedis:
		return NewRedisBus(opts.Redis, opts.Prefix, logger), nil
	case BackendNATS:
		return DialNATS(opts.NATSURL, opts.Prefix, logger)
	default:
		return nil, unknownBackend(opts.Backend)
	}
}
