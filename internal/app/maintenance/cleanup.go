package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pathxpert/server/internal/otp"
	"github.com/pathxpert/server/internal/services"
	"github.com/pathxpert/server/pkg/logger"
)

const defaultSchedule = "@hourly"

// Cleaner runs background maintenance: purging expired one-time codes and
// clearing stale password-reset tokens.
type Cleaner struct {
	otp      *otp.Service
	reset    *services.PasswordResetService
	cron     *cron.Cron
	log      *zap.Logger
	schedule string
	enabled  bool
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSchedule overrides the cron specification for the cleanup job.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(otpService *otp.Service, reset *services.PasswordResetService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		otp:      otpService,
		reset:    reset,
		schedule: defaultSchedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.otp != nil || cleaner.reset != nil

	return cleaner
}

// Start registers the cleanup job and launches the scheduler.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("maintenance run failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every cleanup routine sequentially. Also called during
// graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.otp != nil {
		removed, err := c.otp.PurgeExpired(ctx)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if removed > 0 {
			c.log.Info("purged expired codes", zap.Int64("count", removed))
		}
	}

	if c.reset != nil {
		cleared, err := c.reset.PurgeExpiredTokens(ctx)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if cleared > 0 {
			c.log.Info("cleared expired reset tokens", zap.Int64("count", cleared))
		}
	}

	return errs
}
