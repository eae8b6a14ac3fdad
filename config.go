package alloc

import (
	"log/slog"

	"github.com/cockroachdb/errors"
)

type Config struct {
	Logger *slog.Logger // Receives page lifecycle records. Must not be nil.

	// ReclaimPages enables whole-page reclamation in Bucket.Release: a page whose usable
	// bytes are all sentinel after a release is returned to the page source.
	//
	// The check is an approximation. A live block whose bytes happen to equal the sentinel
	// (e.g. one that was never written) is indistinguishable from a released one, so a page
	// can be reclaimed while such a block is still held. Conversely a page is retained as long
	// as any byte past its header differs from the sentinel.
	ReclaimPages bool
}

func (c Config) Validate(pool PagePooler) error {
	var errs []error
	if c.Logger == nil {
		errs = append(errs, errors.New("invalid config: Logger must not be nil"))
	}
	if pool == nil {
		errs = append(errs, errors.New("invalid config: page pool must not be nil"))
	} else if pool.PageSize() != PageSize {
		errs = append(
			errs,
			errors.Newf("invalid config: page pool page size %d must be %d", pool.PageSize(), PageSize),
		)
	}
	return errors.Join(errs...)
}

func DefaultConfig() Config {
	return Config{
		Logger:       slog.Default(),
		ReclaimPages: true,
	}
}

type PagePoolConfig struct {
	// Number of free pages the pool can hold before starting to unmap them.
	// Zero unmaps every page as soon as it is returned.
	FreeThreshold int

	Logger *slog.Logger
}

func DefaultPagePoolConfig() PagePoolConfig {
	return PagePoolConfig{
		FreeThreshold: 0,
		Logger:        slog.Default(),
	}
}
