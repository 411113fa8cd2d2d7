package engine

import (
	"fmt"

	"github.com/arloliu/rdbe/format"
	"github.com/arloliu/rdbe/internal/options"
)

// DefaultPoolCapacity is the buffer pool size used when WithPoolCapacity is
// not given.
const DefaultPoolCapacity = 64

type config struct {
	poolCapacity      int
	backupCompression format.CompressionType
}

// Option configures an Engine at open time.
type Option = options.Option[*config]

func newConfig(opts ...Option) (config, error) {
	cfg := config{
		poolCapacity:      DefaultPoolCapacity,
		backupCompression: format.CompressionZstd,
	}

	if err := options.Apply(&cfg, opts...); err != nil {
		return config{}, err
	}

	return cfg, nil
}

// WithPoolCapacity sets the number of page frames the buffer pool may hold
// resident. The minimum is 1.
func WithPoolCapacity(capacity int) Option {
	return options.New(func(cfg *config) error {
		if capacity < 1 {
			return fmt.Errorf("pool capacity %d, minimum 1", capacity)
		}
		cfg.poolCapacity = capacity

		return nil
	})
}

// WithBackupCompression selects the compression codec used by Backup.
func WithBackupCompression(compression format.CompressionType) Option {
	return options.New(func(cfg *config) error {
		switch compression {
		case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
			cfg.backupCompression = compression
			return nil
		default:
			return fmt.Errorf("unsupported backup compression: %s", compression)
		}
	})
}
