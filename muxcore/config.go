// MIT License
//
// Copyright (c) 2016-2017 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package muxcore

import (
	"time"

	"github.com/pkg/errors"
)

const (
	defaultOutboundQueueCapacity = 1024
	defaultAcceptBacklog         = 1024
	openCloseTimeout             = 30 * time.Second
)

// Config tunes a ConnectionDriver. The zero value is not ready to use;
// call DefaultConfig and override individual fields.
type Config struct {
	// FlowControlStrategy selects whether credit accounting is enforced.
	FlowControlStrategy FlowControlStrategy

	// OutboundQueueCapacity bounds the number of frames buffered between
	// send_frame and the write loop (spec §5: capacity 1024).
	OutboundQueueCapacity int

	// AcceptBacklog bounds how many inbound StreamRequests can sit in
	// new_streams before IncomingStreams must be polled.
	AcceptBacklog int

	// KeepAliveDisabled turns off the Ping/Pong liveness goroutine.
	KeepAliveDisabled bool

	// KeepAliveInterval is how often a Ping is sent to the peer.
	KeepAliveInterval time.Duration

	// KeepAliveTimeout is how long the driver waits for any inbound
	// traffic (a Pong or otherwise) before declaring the peer dead.
	KeepAliveTimeout time.Duration
}

// DefaultConfig returns a Config with flow control enabled and the
// capacities spec §5 names.
func DefaultConfig() *Config {
	return &Config{
		FlowControlStrategy:   FlowControlEnabled,
		OutboundQueueCapacity: defaultOutboundQueueCapacity,
		AcceptBacklog:         defaultAcceptBacklog,
		KeepAliveInterval:     10 * time.Second,
		KeepAliveTimeout:      30 * time.Second,
	}
}

// VerifyConfig checks the sanity of a Config before it is handed to
// NewDriver, in the same spirit as smux's VerifyConfig.
func VerifyConfig(config *Config) error {
	if config.OutboundQueueCapacity <= 0 {
		return errors.New("muxcore: outbound queue capacity must be positive")
	}
	if config.AcceptBacklog <= 0 {
		return errors.New("muxcore: accept backlog must be positive")
	}
	if !config.KeepAliveDisabled {
		if config.KeepAliveInterval <= 0 {
			return errors.New("muxcore: keep-alive interval must be positive")
		}
		if config.KeepAliveTimeout < config.KeepAliveInterval {
			return errors.New("muxcore: keep-alive timeout must be at least the keep-alive interval")
		}
	}
	return nil
}
