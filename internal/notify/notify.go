// Package notify delivers job lifecycle events as CloudEvents over HTTP.
package notify

import (
	"context"
	"jobseries/internal/observability"
	"jobseries/pkg/backoff"
	"jobseries/pkg/circuitbreaker"
	"jobseries/pkg/cloudevent"
	"log/slog"
	"net/url"
	"time"
)

// Delivery defaults.
const (
	defaultTimeout          = 5 * time.Second
	defaultMaxAttempts      = 3
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultJitter           = 0.2
)

// Config holds notifier configuration.
type Config struct {
	URL         string        // destination for every event
	SigningKey  string        // HMAC key, empty sends unsigned
	Timeout     time.Duration // per attempt (default: 5s)
	MaxAttempts int           // including the first (default: 3)
	Backoff     *backoff.Config
	Breaker     circuitbreaker.Config
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Backoff == nil {
		c.Backoff = &backoff.Config{Jitter: defaultJitter}
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = defaultBreakerThreshold
	}
	if c.Breaker.Cooldown <= 0 {
		c.Breaker.Cooldown = defaultBreakerCooldown
	}
	return c
}

// Notifier posts events to one endpoint, in the calling goroutine.
// Failures are logged and counted; they are never returned to the caller.
type Notifier struct {
	config   Config
	host     string
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates a notifier. metrics may be nil.
func New(cfg Config, metrics *observability.Metrics) *Notifier {
	cfg = cfg.withDefaults()
	n := &Notifier{
		config:   cfg,
		host:     extractHost(cfg.URL),
		sender:   cloudevent.NewSender(cfg.Timeout),
		breakers: circuitbreaker.NewRegistry(cfg.Breaker),
		metrics:  metrics,
		logger:   slog.With("component", "notify"),
	}
	if metrics != nil {
		if err := metrics.ObserveBreakers(n.breakerCounts); err != nil {
			n.logger.Warn("Breaker gauge not registered", "error", err)
		}
	}
	return n
}

func (n *Notifier) breakerCounts() (open, halfOpen, closed int) {
	stats := n.breakers.Stats()
	return stats.Open, stats.HalfOpen, stats.Closed
}

// Notify delivers event with retry. Delivery outlives cancellation of ctx,
// bounded by the per-attempt timeout times the attempt count.
func (n *Notifier) Notify(ctx context.Context, event *cloudevent.CloudEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.config.Timeout*time.Duration(n.config.MaxAttempts))
	defer cancel()

	breaker := n.breakers.Get(n.host)
	start := time.Now()

	err := breaker.Execute(func() error {
		return backoff.Retry(ctx, n.config.MaxAttempts, n.config.Backoff, func(ctx context.Context) error {
			err := n.sender.Send(ctx, n.config.URL, event, cloudevent.SendOptions{SigningKey: n.config.SigningKey})
			if cloudevent.IsClientError(err) {
				return backoff.Permanent(err)
			}
			return err
		})
	})
	if err != nil {
		if n.metrics != nil {
			n.metrics.RecordNotifyFailed(ctx)
		}
		n.logger.Warn("Delivery failed",
			"destination", n.host,
			"type", event.Type,
			"subject", event.Subject,
			"breaker", breaker.State().String(),
			"error", err,
		)
		return
	}

	if n.metrics != nil {
		n.metrics.RecordNotifyDelivered(ctx, time.Since(start).Seconds())
	}
	n.logger.Debug("Event delivered", "type", event.Type, "subject", event.Subject)
}

// extractHost extracts the host from a URL for circuit breaker keying.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
