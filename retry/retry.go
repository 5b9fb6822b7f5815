// Package retry re-invokes fallible operations a bounded number of times.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 5 * time.Second
)

// ErrExhausted is wrapped by the error returned once every attempt failed.
var ErrExhausted = errors.New("retry exhausted")

// Policy describes how often and how patiently an operation is retried.
// The zero value behaves like Default().
type Policy struct {
	MaxAttempts int
	Delay       time.Duration

	// Backoff grows the delay exponentially starting from Delay instead
	// of sleeping a fixed Delay between attempts.
	Backoff bool

	Log *logrus.Entry
}

func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) delay() time.Duration {
	if p.Delay <= 0 {
		return DefaultDelay
	}
	return p.Delay
}

func (p Policy) log() *logrus.Entry {
	if p.Log != nil {
		return p.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if p.Backoff {
		e := backoff.NewExponentialBackOff()
		e.InitialInterval = p.delay()
		e.MaxElapsedTime = 0
		e.Reset()
		b = e
	} else {
		b = backoff.NewConstantBackOff(p.delay())
	}

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts()-1)), ctx)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op under the policy. name identifies op in logs and in the final error.
func Do(ctx context.Context, p Policy, name string, op func() error) error {
	_, err := DoWithData(ctx, p, name, func() (struct{}, error) {
		return struct{}{}, op()
	})

	return err
}

// DoWithData is Do for operations producing a value.
func DoWithData[T any](ctx context.Context, p Policy, name string, op func() (T, error)) (T, error) {
	log := p.log().WithField("op", name)

	n := 0
	stopped := false
	f := func() (T, error) {
		n++

		v, err := op()
		if err != nil {
			var pe *backoff.PermanentError
			stopped = errors.As(err, &pe)
		}
		return v, err
	}

	notify := func(err error, next time.Duration) {
		log.Errorf("exec %s failed %d times, err:%s", name, n, err.Error())
	}

	v, err := backoff.RetryNotifyWithData(f, p.newBackOff(ctx), notify)
	if err == nil {
		return v, nil
	}

	if stopped || ctx.Err() != nil {
		return v, err
	}

	log.Errorf("exec %s failed %d times, err:%s", name, n, err.Error())

	return v, fmt.Errorf("%s still fail after try %d times: %w: %v", name, n, ErrExhausted, err)
}
