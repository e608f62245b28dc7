// internal/infra/delivery/client.go
package delivery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Message is one e-mail to one address.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Provider performs a single send attempt with an access token and returns
// the provider's message id.
type Provider interface {
	Send(ctx context.Context, accessToken string, msg Message) (string, error)
}

// Credentials is the part of CredentialManager the client depends on.
type Credentials interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate()
}

// AttemptObserver is notified of every attempt outcome.
type AttemptObserver interface {
	ObserveAttempt(outcome string)
}

// RetryPolicy bounds the exponential backoff between attempts.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is 4 attempts waiting 1s, 2s, 4s, capped at 30s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    4,
	BaseDelay:      time.Second,
	MaxDelay:       30 * time.Second,
	AttemptTimeout: 30 * time.Second,
}

// Client sends messages with retry, credential refresh and classification.
// It is safe for concurrent use.
type Client struct {
	provider Provider
	creds    Credentials
	policy   RetryPolicy
	observer AttemptObserver
	logger   logrus.FieldLogger

	// newTimer is swapped in tests to avoid real sleeps.
	newTimer func() backoff.Timer
}

func NewClient(provider Provider, creds Credentials, policy RetryPolicy, observer AttemptObserver, logger logrus.FieldLogger) *Client {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Client{
		provider: provider,
		creds:    creds,
		policy:   policy,
		observer: observer,
		logger:   logger,
	}
}

func (c *Client) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.policy.MaxDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.policy.MaxAttempts-1)), ctx)
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveAttempt(outcome)
	}
}

// attempt makes one provider call with the current access token.
func (c *Client) attempt(ctx context.Context, msg Message) (string, error) {
	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if c.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.AttemptTimeout)
		defer cancel()
	}
	return c.provider.Send(ctx, token, msg)
}

// tokenRejected reports a provider 401, which a refreshed access token may cure.
func tokenRejected(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized
}

// Send delivers msg and returns the provider message id. Failures come back
// as *DeliveryError. A rejected access token is refreshed and the send
// repeated once without waiting; only a second rejection, or a refresh the
// token endpoint refuses, is fatal.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	var (
		attempts  int
		messageID string
		lastClass ErrorClass
		refreshed bool
	)
	log := c.logger.WithField("to", msg.To)

	operation := func() error {
		attempts++
		id, err := c.attempt(ctx, msg)
		if err != nil && !refreshed && tokenRejected(err) {
			refreshed = true
			c.observe("token_rejected")
			c.creds.Invalidate()
			log.WithError(err).Warn("Access token rejected, retrying with a refreshed token")
			id, err = c.attempt(ctx, msg)
		}
		if err == nil {
			messageID = id
			c.observe("success")
			return nil
		}

		lastClass = Classify(err)
		c.observe(lastClass.String())
		switch lastClass {
		case ClassRetryable:
			c.creds.Invalidate()
			return err
		case ClassFatal:
			c.creds.Invalidate()
			log.WithError(err).Error("Delivery credential rejected, reauthorization required")
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"wait":    wait.String(),
		}).Warn("Transient delivery failure, retrying")
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}
	if err := backoff.RetryNotifyWithTimer(operation, c.backOff(ctx), notify, timer); err != nil {
		return "", &DeliveryError{Class: lastClass, Attempts: attempts, Err: err}
	}
	return messageID, nil
}
