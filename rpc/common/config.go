package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Formatting helpers
// --------------------------------------------------------------------------

// ConfigWriter builds the aligned multi-section summaries that every
// command logs on startup.
type ConfigWriter struct {
	sb strings.Builder
}

// Section starts a new upper-case section
func (w *ConfigWriter) Section(title string) {
	w.sb.WriteString("\n")
	w.sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

// Field writes one aligned name/value line
func (w *ConfigWriter) Field(name, value string) {
	w.sb.WriteString(fmt.Sprintf("  %-24s: %s\n", name, value))
}

func (w *ConfigWriter) String() string {
	return w.sb.String()
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the listener settings of the cache server
type ServerTransportConfig struct {
	Endpoint        string
	WorkersPerConn  int
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	WriteBufferSize int
	ReadBufferSize  int
}

// ServerConfig holds all configuration parameters for the cache server.
type ServerConfig struct {
	// Shards lists the shard ids served; each one is an independent local store
	Shards []uint64

	// Engine parameters
	DBShards   int
	GCInterval time.Duration

	// Timeout bounds reads and writes on a connection (0 = none)
	Timeout time.Duration

	// StatsInterval enables periodic request statistics (0 = off)
	StatsInterval time.Duration

	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var w ConfigWriter

	w.Section("Cache Server")
	w.Field("Endpoint", c.Transport.Endpoint)
	w.Field("Timeout", c.Timeout.String())
	w.Field("Workers Per Connection", strconv.Itoa(c.Transport.WorkersPerConn))
	w.Field("Stats Interval", c.StatsInterval.String())

	w.Section("Engine")
	w.Field("DB Shards", strconv.Itoa(c.DBShards))
	w.Field("GC Interval", c.GCInterval.String())

	w.Section("Logging")
	w.Field("Log Level", c.LogLevel)

	w.Section("Shards")
	for i, shard := range c.Shards {
		w.Field(strconv.Itoa(i), strconv.FormatUint(shard, 10))
	}

	return w.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the connection settings of the cache client
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	TCPNoDelay             bool
	TCPKeepAliveSec        int
	WriteBufferSize        int
	ReadBufferSize         int
}

// ClientConfig configures the remote cache backend.
type ClientConfig struct {
	// Timeout bounds one request across all retries and backoff (0 = none)
	Timeout time.Duration

	Transport ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var w ConfigWriter

	w.Section("Cache Client")
	w.Field("Timeout", c.Timeout.String())
	w.Field("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	w.Field("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	w.Section("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		w.Field(strconv.Itoa(i), endpoint)
	}

	return w.String()
}
