package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/phantom/rpc/common"
	"github.com/ValentinKolb/phantom/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// redialInterval is the minimum time between two dial attempts on one connection slot
const redialInterval = time.Second

var (
	errNotConnected = errors.New("connection is not established")
	errTimeout      = errors.New("request timed out")
	errClosed       = errors.New("transport is closed")
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// clientConnection is one connection slot. The underlying net.Conn is dialed
// lazily and replaced after a failure.
type clientConnection struct {
	endpoint     string
	parent       *clientTransport
	requestChans *xsync.MapOf[uint64, chan responseResult]

	connMu   sync.Mutex // Guards conn and lastDial and serializes writes
	conn     net.Conn
	lastDial time.Time
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64 // Round Robin counter
	nextRequestID atomic.Uint64 // Unique request IDs
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.closeConnections()

	t.config = config
	t.stopping.Store(false)

	connectionsPerEP := max(1, config.Transport.ConnectionsPerEndpoint)
	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	connected := 0
	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint:     endpoint,
				parent:       t,
				requestChans: xsync.NewMapOf[uint64, chan responseResult](),
			}

			// A failed slot is kept and dialed again on first use
			clientConn.connMu.Lock()
			_, err := clientConn.connectLocked()
			clientConn.connMu.Unlock()
			if err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
			} else {
				connected++
			}

			connections = append(connections, clientConn)
		}
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	if connected == 0 {
		Logger.Warningf("No %s endpoint reachable yet, requests will fail until one is", t.connector.GetName())
	} else {
		Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport",
			connected, len(connections), len(config.Transport.Endpoints), t.connector.GetName())
	}

	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	if t.stopping.Load() {
		return nil, errClosed
	}

	maxRetries := max(1, t.config.Transport.RetryCount)

	// Timeout bounds all attempts together, backoff included
	var deadline time.Time
	if t.config.Timeout > 0 {
		deadline = time.Now().Add(t.config.Timeout)
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	attempts := 0
	for attempts < maxRetries {
		conn := t.getNextConnection()
		if conn == nil {
			return nil, fmt.Errorf("no connections configured")
		}

		var wait time.Duration
		if !deadline.IsZero() {
			if wait = time.Until(deadline); wait <= 0 {
				lastErr = errTimeout
				break
			}
		}

		attempts++
		data, err := conn.send(shardId, t.nextRequestID.Add(1), req, wait)
		if err == nil {
			return data, nil
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d to %s failed: %v", attempts, maxRetries, conn.endpoint, err)

		if attempts < maxRetries {
			// Exponential backoff with a small random jitter (+-10%)
			sleep := time.Duration(float64(backoffMs)*(0.9+0.2*rand.Float64())) * time.Millisecond
			if !deadline.IsZero() && sleep >= time.Until(deadline) {
				break
			}
			time.Sleep(sleep)
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", attempts, lastErr)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}
	if len(t.connections) == 1 {
		return t.connections[0]
	}
	index := t.nextConnIndex.Add(1) % uint64(len(t.connections))
	return t.connections[index]
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, c := range connections {
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close() // the reader goroutine exits on the read error
			c.conn = nil
		}
		c.connMu.Unlock()
	}
}

// send writes one request and waits for its response. A timeout <= 0 waits
// until the connection fails.
func (c *clientConnection) send(shardId, requestID uint64, req []byte, timeout time.Duration) ([]byte, error) {
	respCh := make(chan responseResult, 1)
	c.requestChans.Store(requestID, respCh)
	defer c.requestChans.Delete(requestID)

	c.connMu.Lock()
	conn, err := c.connectLocked()
	if err == nil {
		if timeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		}
		if err = writeFrame(conn, shardId, requestID, req); err != nil {
			c.dropLocked(conn)
		}
	}
	c.connMu.Unlock()

	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		result := <-respCh
		return result.data, result.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-timer.C:
		return nil, errTimeout
	}
}

// connectLocked returns the live connection or dials a new one.
// Dialing is rate limited per slot. The caller holds connMu.
func (c *clientConnection) connectLocked() (net.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	if c.parent.stopping.Load() {
		return nil, errClosed
	}
	if !c.lastDial.IsZero() && time.Since(c.lastDial) < redialInterval {
		return nil, errNotConnected
	}
	c.lastDial = time.Now()

	conn, err := c.parent.connector.Connect(c.endpoint, c.parent.config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	c.conn = conn
	go c.readResponses(conn)
	return conn, nil
}

// dropLocked forgets conn if it is still the current connection. The caller holds connMu.
func (c *clientConnection) dropLocked(conn net.Conn) {
	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

// readResponses distributes responses on conn to the waiting requests until
// the connection fails. Pending requests then fail immediately.
func (c *clientConnection) readResponses(conn net.Conn) {
	for {
		_, requestID, data, err := readFrame(conn, nil)
		if err != nil {
			c.connMu.Lock()
			c.dropLocked(conn)
			c.connMu.Unlock()

			if !c.parent.stopping.Load() {
				Logger.Warningf("Connection to %s lost: %v", c.endpoint, err)
			}

			c.requestChans.Range(func(_ uint64, ch chan responseResult) bool {
				select {
				case ch <- responseResult{nil, fmt.Errorf("error reading response: %w", err)}:
				default:
				}
				return true
			})
			return
		}

		respCh, found := c.requestChans.Load(requestID)
		if !found {
			// the request already timed out
			Logger.Debugf("Dropping response for unknown request ID %d", requestID)
			continue
		}
		select {
		case respCh <- responseResult{data, nil}:
		default:
		}
	}
}
