package serve

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ValentinKolb/phantom/api"
	"github.com/ValentinKolb/phantom/lib/recordstore/sqlstore"
	"github.com/ValentinKolb/phantom/lib/snapshot"
	"github.com/ValentinKolb/phantom/rpc/common"
)

// Cache backends selectable with --cache-backend
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
	BackendNone   = "none"
)

// serveConfig collects everything the serve command needs to start.
type serveConfig struct {
	DB            sqlstore.Config
	API           api.Config
	Builder       snapshot.BuilderConfig
	Cache         snapshot.CacheConfig
	SchemaTimeout time.Duration

	// Backend is one of BackendLocal, BackendRemote or BackendNone
	Backend        string
	LocalDBShards  int
	LocalGC        time.Duration
	RemoteShard    uint64
	Remote         common.ClientConfig
	RemoteSerial   string
	RemoteProtocol string

	LogLevel string
}

func (c *serveConfig) validate() error {
	switch c.Backend {
	case BackendLocal, BackendRemote, BackendNone:
	default:
		return fmt.Errorf("invalid cache backend %s. must be one of local, remote, none", c.Backend)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db-dsn is required")
	}
	if c.Backend == BackendRemote {
		if len(c.Remote.Transport.Endpoints) == 0 {
			return fmt.Errorf("cache-endpoints is required for the remote cache backend")
		}
		if c.Remote.Timeout <= 0 {
			return fmt.Errorf("cache-timeout must be positive for the remote cache backend, got %s", c.Remote.Timeout)
		}
	}
	return nil
}

var (
	urlPasswordRe = regexp.MustCompile(`(://[^:/@]+:)[^@]*@`)
	kvPasswordRe  = regexp.MustCompile(`(password=)\S+`)
)

// redact hides credentials in a DSN before it is logged
func redact(dsn string) string {
	dsn = urlPasswordRe.ReplaceAllString(dsn, "${1}***@")
	return kvPasswordRe.ReplaceAllString(dsn, "${1}***")
}

// String returns a formatted string representation of the configuration
func (c *serveConfig) String() string {
	var w common.ConfigWriter

	w.Section("API")
	w.Field("Endpoint", c.API.Endpoint)
	w.Field("Request Timeout", c.API.RequestTimeout.String())
	w.Field("Max Body Bytes", strconv.FormatInt(c.API.MaxBodyBytes, 10))

	w.Section("Record Store")
	w.Field("Driver", c.DB.Driver)
	w.Field("DSN", redact(c.DB.DSN))
	w.Field("Max Open Conns", strconv.Itoa(c.DB.MaxOpenConns))
	w.Field("Schema Timeout", c.SchemaTimeout.String())

	w.Section("Snapshot")
	w.Field("Recent Limit", strconv.Itoa(c.Builder.RecentLimit))
	w.Field("Phantom Limit", strconv.Itoa(c.Builder.PhantomLimit))
	w.Field("Codec", string(c.Cache.Codec))
	w.Field("TTL", c.Cache.TTL.String())
	w.Field("Cache Backend", c.Backend)
	switch c.Backend {
	case BackendLocal:
		w.Field("DB Shards", strconv.Itoa(c.LocalDBShards))
		w.Field("GC Interval", c.LocalGC.String())
	case BackendRemote:
		w.Field("Shard", strconv.FormatUint(c.RemoteShard, 10))
		w.Field("Transport", c.RemoteProtocol)
		w.Field("Serializer", c.RemoteSerial)
	}

	w.Section("Logging")
	w.Field("Log Level", c.LogLevel)

	s := w.String()
	if c.Backend == BackendRemote {
		s += c.Remote.String()
	}
	return s
}
