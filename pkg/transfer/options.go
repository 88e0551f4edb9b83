// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transfer

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults
const (
	MaxRetries          = 3
	DefaultReplyTimeout = 5 * time.Second
	DefaultBusyBackoff  = time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// Options configures a Sender
type Options struct {
	MaxRetries   int           // attempts per unit
	ReplyTimeout time.Duration // wait for one complete reply
	BusyBackoff  time.Duration // pause after a busy Start reply
	PollInterval time.Duration // read slice on streams with read timeouts
	Logger       zerolog.Logger
	Listener     Listener
}

// DefaultOptions returns the options used by NewSender
func DefaultOptions() Options {
	return Options{
		MaxRetries:   MaxRetries,
		ReplyTimeout: DefaultReplyTimeout,
		BusyBackoff:  DefaultBusyBackoff,
		PollInterval: DefaultPollInterval,
		Logger:       zerolog.Nop(),
		Listener:     NopListener{},
	}
}

// Option modifies Options
type Option func(*Options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithListener(l Listener) Option {
	return func(o *Options) {
		if l == nil {
			l = NopListener{}
		}
		o.Listener = l
	}
}

func WithReplyTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReplyTimeout = d }
}

// WithMaxRetries sets the attempts per unit. Values below 1 mean 1.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		if n < 1 {
			n = 1
		}
		o.MaxRetries = n
	}
}

func WithBusyBackoff(d time.Duration) Option {
	return func(o *Options) { o.BusyBackoff = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}
