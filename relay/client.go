// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcjoin/protocol"
	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

var (
	// ErrClientShutdown is returned when the client is stopped while an
	// operation is in flight.
	ErrClientShutdown = errors.New("relay client shutting down")

	// errNotConnected is returned when no connection is up.
	errNotConnected = errors.New("not connected to relay")
)

// RejectedError is returned when the relay answers a published event with a
// negative OK.
type RejectedError struct {
	EventID string
	Reason  string
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay rejected event %s: %s", e.EventID, e.Reason)
}

// ClientConfig holds the settings of a relay Client.
type ClientConfig struct {
	// URL is the websocket URL of the relay, e.g. wss://relay.example.
	URL string

	// Codec signs deletion requests.  Delete fails when it is nil.
	Codec *protocol.Codec

	// Proxy is an optional SOCKS5 proxy address (host:port).
	Proxy string

	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// AckTimeout bounds the wait for the relay's OK after a publish
	// attempt.
	AckTimeout time.Duration

	// ReconnectMin and ReconnectMax bound the reconnect and republish
	// backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DefaultClientConfig returns the default settings for url.
func DefaultClientConfig(url string) *ClientConfig {
	return &ClientConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		AckTimeout:       10 * time.Second,
		ReconnectMin:     200 * time.Millisecond,
		ReconnectMax:     5 * time.Second,
	}
}

// clientSub ties a relay subscription id to the local subscription.
type clientSub struct {
	filter Filter
	sub    *Subscription
}

// Client is a Relay backed by a nostr relay reached over a websocket.  The
// connection is re-established with backoff whenever it drops, and open
// subscriptions are re-sent after every reconnect.
type Client struct {
	started int32 // To be used atomically.
	stopped int32 // To be used atomically.

	cfg    *ClientConfig
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connReady chan struct{}
	subs      map[string]*clientSub
	pending   map[string]chan error

	writeMtx sync.Mutex

	quit chan struct{}
	wg   sync.WaitGroup
}

// A compile-time assertion to ensure Client implements Relay.
var _ Relay = (*Client)(nil)

// NewClient creates a client.  Start must be called before use.
func NewClient(cfg *ClientConfig) (*Client, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if cfg.Proxy != "" {
		socks, err := proxy.SOCKS5("tcp", cfg.Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("unable to use proxy %s: %w",
				cfg.Proxy, err)
		}
		dialer.NetDial = socks.Dial
	}

	return &Client{
		cfg:       cfg,
		dialer:    dialer,
		connReady: make(chan struct{}),
		subs:      make(map[string]*clientSub),
		pending:   make(map[string]chan error),
		quit:      make(chan struct{}),
	}, nil
}

// Start launches the connection manager.
func (c *Client) Start() error {
	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return nil
	}

	log.Infof("Connecting to relay %s", c.cfg.URL)

	c.wg.Add(1)
	go c.connectionHandler()
	return nil
}

// Stop closes the connection and waits for the client goroutines to exit.
func (c *Client) Stop() {
	if !atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		return
	}

	close(c.quit)

	c.mu.Lock()
	conn := c.conn
	subs := make([]*clientSub, 0, len(c.subs))
	for _, cs := range c.subs {
		subs = append(subs, cs)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, cs := range subs {
		cs.sub.Close()
	}

	c.wg.Wait()
}

// connectionHandler keeps a connection to the relay up until the client is
// stopped.
//
// NOTE: This MUST be run as a goroutine.
func (c *Client) connectionHandler() {
	defer c.wg.Done()

	bo := newBackoff(c.cfg.ReconnectMin, c.cfg.ReconnectMax, 0.2)
	for {
		conn, _, err := c.dialer.Dial(c.cfg.URL, nil)
		if err != nil {
			delay := bo.Next()
			log.Warnf("Unable to connect to %s, retrying in %v: %v",
				c.cfg.URL, delay, err)

			select {
			case <-time.After(delay):
				continue
			case <-c.quit:
				return
			}
		}
		bo.Reset()

		log.Debugf("Connected to relay %s", c.cfg.URL)
		c.onConnect(conn)
		c.readLoop(conn)
		c.onDisconnect(conn)

		select {
		case <-c.quit:
			return
		default:
		}

		log.Infof("Lost connection to relay %s, reconnecting",
			c.cfg.URL)
	}
}

// onConnect installs a fresh connection and re-sends open subscriptions.
func (c *Client) onConnect(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	close(c.connReady)
	reqs := make(map[string]Filter, len(c.subs))
	for id, cs := range c.subs {
		reqs[id] = cs.filter
	}
	c.mu.Unlock()

	// A connection that closed during Stop is discarded by readLoop.
	select {
	case <-c.quit:
		conn.Close()
	default:
	}

	for id, f := range reqs {
		if err := c.write([]interface{}{"REQ", id, f}); err != nil {
			log.Debugf("Unable to resubscribe %s: %v", id, err)
		}
	}
}

// onDisconnect drops the connection and fails in-flight publishes.
func (c *Client) onDisconnect(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connReady = make(chan struct{})
	}
	for id, ch := range c.pending {
		ch <- errNotConnected
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// readLoop dispatches relay frames until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debugf("Read from %s failed: %v", c.cfg.URL, err)
			return
		}
		c.handleFrame(data)
	}
}

// handleFrame processes one relay-to-client message.
func (c *Client) handleFrame(data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) == 0 {
		log.Debugf("Malformed frame from %s", c.cfg.URL)
		return
	}

	var typ string
	if err := json.Unmarshal(frame[0], &typ); err != nil {
		return
	}

	switch typ {
	case "EVENT":
		var (
			subID string
			env   protocol.Envelope
		)
		if len(frame) < 3 || json.Unmarshal(frame[1], &subID) != nil ||
			json.Unmarshal(frame[2], &env) != nil {

			return
		}
		if err := env.Verify(); err != nil {
			log.Debugf("Dropping unverifiable event %s: %v", env.ID,
				err)
			return
		}

		c.mu.Lock()
		cs := c.subs[subID]
		c.mu.Unlock()
		if cs != nil {
			cs.sub.deliver(&env)
		}

	case "OK":
		var (
			id       string
			accepted bool
			reason   string
		)
		if len(frame) < 3 || json.Unmarshal(frame[1], &id) != nil ||
			json.Unmarshal(frame[2], &accepted) != nil {

			return
		}
		if len(frame) > 3 {
			_ = json.Unmarshal(frame[3], &reason)
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if !ok {
			return
		}
		if accepted {
			ch <- nil
		} else {
			ch <- &RejectedError{EventID: id, Reason: reason}
		}

	case "EOSE":
		log.Tracef("End of stored events from %s", c.cfg.URL)

	case "NOTICE", "CLOSED":
		log.Infof("Relay %s: %s", c.cfg.URL, data)
	}
}

// write sends a JSON frame on the current connection.
func (c *Client) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()

	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// waitConnected blocks until a connection is up.
func (c *Client) waitConnected(ctx context.Context) error {
	c.mu.Lock()
	ready := c.connReady
	c.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-time.After(c.cfg.AckTimeout):
		return errNotConnected
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrClientShutdown
	}
}

// publishOnce sends env and waits for the relay's acknowledgement.
func (c *Client) publishOnce(ctx context.Context,
	env *protocol.Envelope) error {

	if err := c.waitConnected(ctx); err != nil {
		return err
	}

	ack := make(chan error, 1)
	c.mu.Lock()
	c.pending[env.ID] = ack
	c.mu.Unlock()

	if err := c.write([]interface{}{"EVENT", env}); err != nil {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
		return err
	}

	select {
	case err := <-ack:
		return err
	case <-time.After(c.cfg.AckTimeout):
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
		return errors.New("timed out waiting for relay ack")
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrClientShutdown
	}
}

// Publish sends env, retrying transport failures with backoff until the
// relay acknowledges it or ctx expires.
func (c *Client) Publish(ctx context.Context, env *protocol.Envelope) error {
	bo := newBackoff(c.cfg.ReconnectMin, c.cfg.ReconnectMax, 0.2)
	for {
		err := c.publishOnce(ctx, env)
		var rejected *RejectedError
		switch {
		case err == nil:
			log.Tracef("Published %v event %s to %s", env.Kind,
				env.ID, c.cfg.URL)
			return nil

		case errors.As(err, &rejected), errors.Is(err, ErrClientShutdown):
			return err
		}

		delay := bo.Next()
		log.Debugf("Publish of %s to %s failed, retrying in %v: %v",
			env.ID, c.cfg.URL, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return protocol.NewError(protocol.ErrTransportFailure,
				"unable to publish to "+c.cfg.URL, err)
		case <-c.quit:
			return ErrClientShutdown
		}
	}
}

// Subscribe opens a subscription on the relay.  It is re-sent after every
// reconnect.
func (c *Client) Subscribe(ctx context.Context, f Filter) (*Subscription,
	error) {

	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, err
	}
	id := hex.EncodeToString(raw[:])

	sub := newSubscription(ctx, f, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()

		if atomic.LoadInt32(&c.stopped) == 0 {
			_ = c.write([]interface{}{"CLOSE", id})
		}
	})

	c.mu.Lock()
	c.subs[id] = &clientSub{filter: f, sub: sub}
	c.mu.Unlock()

	// Without a connection the request goes out on connect.
	if err := c.write([]interface{}{"REQ", id, f}); err != nil &&
		!errors.Is(err, errNotConnected) {

		log.Debugf("Unable to subscribe on %s: %v", c.cfg.URL, err)
	}

	return sub, nil
}

// Delete publishes a signed deletion request for eventID.
func (c *Client) Delete(ctx context.Context, eventID string) error {
	if c.cfg.Codec == nil {
		return errors.New("relay client has no codec for deletions")
	}

	env, err := c.cfg.Codec.NewDeletion(eventID)
	if err != nil {
		return err
	}
	return c.Publish(ctx, env)
}
