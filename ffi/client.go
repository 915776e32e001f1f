// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/atrium-rtc/atrium/lib/codec"
)

// ErrClientClosed is returned by Request after Close.
var ErrClientClosed = errors.New("ffi: client closed")

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// Engine is the native engine to bind. Required.
	Engine Engine

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// RingSize is the diagnostic ring capacity in events. Zero means
	// DefaultRingSize.
	RingSize int
}

// Client wraps an Engine with the request gateway and the event pump.
// One Client serves every session in the process: the engine's feed
// is shared, and each Room filters its own subscription by room
// handle.
type Client struct {
	engine Engine
	logger *slog.Logger
	ring   *eventRing

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewClient binds an engine and starts its event feed.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("ffi: Engine is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ringSize := config.RingSize
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}

	client := &Client{
		engine: config.Engine,
		logger: logger,
		ring:   newEventRing(ringSize),
		subs:   make(map[uint64]*Subscription),
	}

	if err := config.Engine.Start(client.deliver); err != nil {
		return nil, fmt.Errorf("ffi: starting engine event feed: %w", err)
	}
	return client, nil
}

// Request encodes and submits one request, returning the correlation
// id from the engine's synchronous acknowledgement. It never waits
// for the async result — correlate that yourself with a Subscription
// opened BEFORE this call.
func (c *Client) Request(ctx context.Context, request *Request) (uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClientClosed
	}
	c.mu.Unlock()

	if err := request.Validate(); err != nil {
		return 0, err
	}

	data, err := codec.Marshal(request)
	if err != nil {
		return 0, fmt.Errorf("ffi: encoding %s request: %w", request.Kind, err)
	}

	ackData, err := c.engine.Request(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("ffi: %s request: %w", request.Kind, err)
	}

	var ack Ack
	if err := codec.Unmarshal(ackData, &ack); err != nil {
		return 0, fmt.Errorf("ffi: decoding %s acknowledgement: %w", request.Kind, err)
	}
	return ack.AsyncID, nil
}

// Subscribe opens an independent FIFO view of the event feed,
// starting with the next delivered event.
func (c *Client) Subscribe() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	sub := &Subscription{
		client: c,
		id:     c.nextID,
		ready:  make(chan struct{}, 1),
	}
	if !c.closed {
		c.subs[sub.id] = sub
	} else {
		sub.closed = true
	}
	return sub
}

// unsubscribe detaches a subscription. Called from Subscription.Close.
func (c *Client) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

// Logger returns the client's structured logger. Session controllers
// derive their own loggers from it.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Drop releases one engine resource handle. Exposed so handles and
// owned-buffer reads can name the Client as their Dropper.
func (c *Client) Drop(handle uint64) {
	c.engine.Drop(handle)
}

// RecentEvents returns a snapshot of the diagnostic ring, oldest
// digest first. For troubleshooting only; the pump records every
// decoded event here before broadcasting it.
func (c *Client) RecentEvents() []EventDigest {
	return c.ring.snapshot()
}

// Close detaches all subscriptions and shuts the engine down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	if err := c.engine.Close(); err != nil {
		return fmt.Errorf("ffi: closing engine: %w", err)
	}
	return nil
}

// deliver is the engine sink: decode, record a digest, fan out. The
// engine calls it serially, which is what preserves per-subscriber
// FIFO order. Decode failures are logged and dropped — one malformed
// envelope must not take the feed down.
func (c *Client) deliver(data []byte) {
	event := new(Event)
	if err := codec.Unmarshal(data, event); err != nil {
		c.logger.Error("dropping undecodable engine event", "error", err, "bytes", len(data))
		return
	}
	if err := event.Validate(); err != nil {
		c.logger.Error("dropping malformed engine event", "error", err)
		return
	}

	digest := EventDigest{Kind: event.Kind}
	switch event.Kind {
	case EventRoom:
		digest.Detail = event.Room.Kind.String()
	case EventStream:
		digest.Detail = strconv.FormatUint(event.Stream.StreamHandle, 10)
	}
	if id, ok := event.AsyncID(); ok {
		digest.AsyncID = id
	}
	c.ring.record(digest)

	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.publish(event)
	}
}
