package cache

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ValentinKolb/phantom/cmd/util"
	"github.com/ValentinKolb/phantom/rpc/common"
	"github.com/ValentinKolb/phantom/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cacheCmdConfig = &common.ServerConfig{}
	CacheCmd       = &cobra.Command{
		Use:   "cache",
		Short: "Start a shared snapshot cache server",
		Long: `Start a cache server that several API instances can share as their snapshot
cache (serve --cache-backend=remote). Each shard is an independent in-memory
store with expiry. Every flag can also be set as PHANTOM_<FLAG>
(e.g. PHANTOM_GC_INTERVAL=30s).`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "shards"
	CacheCmd.Flags().String(key, "100", util.WrapString("Comma-separated list of shard IDs to serve"))

	key = "db-shards"
	CacheCmd.Flags().Int(key, 0, util.WrapString("Number of lock shards of each in-memory store (0 = number of CPUs)"))

	key = "gc-interval"
	CacheCmd.Flags().Duration(key, 0, util.WrapString("How often expired entries are swept (0 = engine default)"))

	key = "timeout"
	CacheCmd.Flags().Duration(key, 0, util.WrapString("Read/write deadline of a connection (0 = none)"))

	key = "stats-interval"
	CacheCmd.Flags().Duration(key, 0, util.WrapString("Log request statistics per shard at this interval (0 = off)"))

	key = "transport"
	CacheCmd.Flags().String(key, "tcp", util.WrapString("Transport to listen on (http, tcp, unix)"))

	key = "serializer"
	CacheCmd.Flags().String(key, "binary", util.WrapString("Serializer for messages (json, gob, binary); must match the clients"))

	key = "endpoint"
	CacheCmd.Flags().String(key, "0.0.0.0:8081", util.WrapString("The address on which the cache server listens (e.g. localhost:8081, /tmp/phantom.sock, ...)"))

	key = "transport-workers"
	CacheCmd.Flags().Int(key, 0, util.WrapString("Workers per connection (0 = transport default)"))

	key = "transport-write-buffer"
	CacheCmd.Flags().Int(key, 512, util.WrapString("Size of the socket write buffer in KB (tcp, unix)"))

	key = "transport-read-buffer"
	CacheCmd.Flags().Int(key, 512, util.WrapString("Size of the socket read buffer in KB (tcp, unix)"))

	key = "transport-tcp-nodelay"
	CacheCmd.Flags().Bool(key, true, util.WrapString("Enable TCP_NODELAY (tcp only)"))

	key = "transport-tcp-keepalive"
	CacheCmd.Flags().Int(key, 0, util.WrapString("Keepalive interval in seconds (tcp only)"))

	key = "transport-tcp-linger"
	CacheCmd.Flags().Int(key, -1, util.WrapString("Linger time in seconds (tcp only, -1 = system default)"))
}

// processConfig converts flags and environment variables into the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	cacheCmdConfig.Shards = nil
	for _, raw := range strings.Split(viper.GetString("shards"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		shardID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid shard ID %q: %w", raw, err)
		}
		cacheCmdConfig.Shards = append(cacheCmdConfig.Shards, shardID)
	}
	if len(cacheCmdConfig.Shards) == 0 {
		return fmt.Errorf("at least one shard is required")
	}

	cacheCmdConfig.DBShards = viper.GetInt("db-shards")
	cacheCmdConfig.GCInterval = viper.GetDuration("gc-interval")
	cacheCmdConfig.Timeout = viper.GetDuration("timeout")
	cacheCmdConfig.StatsInterval = viper.GetDuration("stats-interval")
	cacheCmdConfig.LogLevel = viper.GetString("log-level")
	cacheCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:        viper.GetString("endpoint"),
		WorkersPerConn:  viper.GetInt("transport-workers"),
		TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
		ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
	}

	return nil
}

// run serves the cache until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := util.GetSerializer("serializer")
	if err != nil {
		return err
	}
	t, err := util.GetServerTransport("transport")
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(*cacheCmdConfig, t, s)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		util.Logger.Infof("shutting down cache server")
		_ = serv.Close()
	}()

	if err := serv.Serve(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
