package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/phantom/rpc/common"
	"github.com/ValentinKolb/phantom/rpc/serializer"
	"github.com/ValentinKolb/phantom/rpc/transport"
	"github.com/ValentinKolb/phantom/rpc/transport/http"
	"github.com/ValentinKolb/phantom/rpc/transport/tcp"
	"github.com/ValentinKolb/phantom/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is prepended to every flag read from the environment
	EnvPrefix = "phantom"

	// DefaultCacheTimeout bounds remote cache calls unless configured otherwise
	DefaultCacheTimeout = 250 * time.Millisecond
)

var Logger = logger.GetLogger("cmd")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes every flag settable as PHANTOM_<FLAG>
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Cache client flags (serve --cache-backend=remote)
// --------------------------------------------------------------------------

// SetupCacheClientFlags adds the flags of the remote cache client to a command
func SetupCacheClientFlags(cmd *cobra.Command) {
	key := "cache-timeout"
	cmd.Flags().Duration(key, DefaultCacheTimeout, WrapString("Deadline of a single cache request across all retries. A request that runs out of time is served as a cache miss"))

	key = "cache-shard"
	cmd.Flags().Uint64(key, 100, WrapString("ID of the cache server shard holding the snapshot"))

	key = "cache-transport"
	cmd.Flags().String(key, "tcp", WrapString("Transport to the cache server (http, tcp, unix)"))

	key = "cache-serializer"
	cmd.Flags().String(key, "binary", WrapString("Serializer for cache messages (json, gob, binary)"))

	key = "cache-endpoints"
	cmd.Flags().String(key, "localhost:8081", WrapString("Address of the cache server. For transports that support load balancing, multiple endpoints can be specified as a comma-separated list"))

	key = "cache-conn-per-endpoint"
	cmd.Flags().Int(key, 1, WrapString("Simultaneous connections per endpoint (tcp, unix)"))

	key = "cache-retries"
	cmd.Flags().Int(key, 3, WrapString("How many times to retry a request"))

	key = "cache-write-buffer"
	cmd.Flags().Int(key, 512, WrapString("Size of the write buffer in KB (ignored for http)"))

	key = "cache-read-buffer"
	cmd.Flags().Int(key, 512, WrapString("Size of the read buffer in KB (ignored for http)"))

	key = "cache-tcp-nodelay"
	cmd.Flags().Bool(key, true, WrapString("Enable TCP_NODELAY (tcp only)"))

	key = "cache-tcp-keepalive"
	cmd.Flags().Int(key, 0, WrapString("Keepalive interval in seconds (tcp only)"))
}

// GetCacheClientConfig reads the remote cache client configuration from viper
func GetCacheClientConfig() common.ClientConfig {
	var endpoints []string
	for _, e := range strings.Split(viper.GetString("cache-endpoints"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}

	return common.ClientConfig{
		Timeout: viper.GetDuration("cache-timeout"),
		Transport: common.ClientTransportConfig{
			Endpoints:              endpoints,
			RetryCount:             viper.GetInt("cache-retries"),
			ConnectionsPerEndpoint: viper.GetInt("cache-conn-per-endpoint"),
			TCPNoDelay:             viper.GetBool("cache-tcp-nodelay"),
			TCPKeepAliveSec:        viper.GetInt("cache-tcp-keepalive"),
			WriteBufferSize:        viper.GetInt("cache-write-buffer") * 1024,
			ReadBufferSize:         viper.GetInt("cache-read-buffer") * 1024,
		},
	}
}

// --------------------------------------------------------------------------
// Transport and serializer selection
// --------------------------------------------------------------------------

// GetSerializer creates the serializer named by the viper key
func GetSerializer(key string) (serializer.IRPCSerializer, error) {
	return serializer.ByName(viper.GetString(key))
}

// GetClientTransport creates the client transport named by the viper key
func GetClientTransport(key string) (transport.IRPCClientTransport, error) {
	switch name := viper.GetString(key); name {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}

// GetServerTransport creates the server transport named by the viper key
func GetServerTransport(key string) (transport.IRPCServerTransport, error) {
	switch name := viper.GetString(key); name {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}
