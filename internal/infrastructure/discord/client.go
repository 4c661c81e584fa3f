// Package discord wraps the Discord REST calls the step battle makes outside
// of interaction replies: guild-member lookups and channel posts.
// Every call goes through a retrier and a shared circuit breaker.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/pkg/circuitbreaker"
	"github.com/stepbattle/stepbattle/pkg/logger"
	"github.com/stepbattle/stepbattle/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// API
// ══════════════════════════════════════════════════════════════════════════════

// API is the subset of *discordgo.Session used here.
type API interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ API = (*discordgo.Session)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Discord client.
type ClientConfig struct {
	// RequestTimeout bounds a single REST call including retries.
	RequestTimeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{RequestTimeout: 10 * time.Second}
}

// Client executes Discord REST calls with retries and a circuit breaker.
type Client struct {
	api     API
	timeout time.Duration
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewClient creates a client over api.
func NewClient(api API, cfg ClientConfig) *Client {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("discord_client")

	c := &Client{
		api:     api,
		timeout: cfg.RequestTimeout,
		log:     log,
	}
	c.retrier = retry.DiscordRetrier(isTransient)
	c.breaker = circuitbreaker.DiscordBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}, isTransient)
	return c
}

// Breaker exposes the circuit breaker state for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// do runs fn under the breaker, retrying transient failures.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, fn)
	})
	if err != nil {
		c.log.Debug("discord call failed",
			logger.Operation(op),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
		return fmt.Errorf("%s: %w: %w", op, shared.ErrDiscordAPIFailed, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// restStatus returns the HTTP status of a Discord REST error, or 0.
func restStatus(err error) int {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		return rest.Response.StatusCode
	}
	return 0
}

// IsNotFound reports unknown member, user, guild or channel responses.
func IsNotFound(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
			return true
		}
	}
	return rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

// isTransient reports errors worth retrying: rate limits, 5xx and network
// failures. 4xx responses and an open breaker are final.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch status := restStatus(err); {
	case status == 0:
		return true
	case status == http.StatusTooManyRequests, status >= 500:
		return true
	default:
		return false
	}
}
