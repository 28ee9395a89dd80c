package server

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/phantom/lib/db"
	"github.com/ValentinKolb/phantom/lib/db/engines/maple"
	"github.com/ValentinKolb/phantom/lib/store"
	"github.com/ValentinKolb/phantom/lib/store/lstore"
	"github.com/ValentinKolb/phantom/rpc/common"
	"github.com/ValentinKolb/phantom/rpc/serializer"
	"github.com/ValentinKolb/phantom/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a shard of the RPC server: the store it encapsulates, the
// adapter that handles requests for the store and its request timer
type serverShard struct {
	Store   store.IStore
	Adapter IRPCServerAdapter
	Timer   metrics.Timer
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())

	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
		registry:   metrics.NewRegistry(),
		stop:       make(chan struct{}),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	registry   metrics.Registry

	stop     chan struct{}
	stopOnce sync.Once
}

// handle decodes a request, routes it to its shard and encodes the response
func (s *rpcServer) handle(shardId uint64, req []byte) []byte {
	var respMsg *common.Message

	shard, ok := s.shards.Load(shardId)
	if !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("shard %d not found", shardId))
	} else {
		start := time.Now()
		respMsg = s.dispatch(shard, req)
		shard.Timer.UpdateSince(start)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// dispatch runs the adapter; a panic becomes an error response
func (s *rpcServer) dispatch(shard serverShard, req []byte) (resp *common.Message) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("panic while handling request: %v", r)
			resp = common.NewErrorResponse(fmt.Sprintf("internal error: %v", r))
		}
	}()

	var msg common.Message
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		return common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	}
	return shard.Adapter.Handle(&msg, shard.Store)
}

func (s *rpcServer) init() error {
	if len(s.config.Shards) == 0 {
		return fmt.Errorf("no shards configured")
	}

	dbShards := s.config.DBShards
	if dbShards <= 0 {
		dbShards = runtime.NumCPU()
	}
	dbFactory := func() db.KVDB {
		return maple.NewMapleDB(&maple.DBOptions{
			NumShards:  dbShards,
			GCInterval: s.config.GCInterval,
		})
	}

	for _, shardId := range s.config.Shards {
		if _, exists := s.shards.Load(shardId); exists {
			return fmt.Errorf("shard %d configured twice", shardId)
		}
		s.shards.Store(shardId, serverShard{
			Store:   lstore.NewLocalStore(dbFactory),
			Adapter: NewIStoreServerAdapter(),
			Timer:   metrics.GetOrRegisterTimer(fmt.Sprintf("shard.%d.requests", shardId), s.registry),
		})
		Logger.Infof("created local store for shard %d", shardId)
	}

	s.transport.RegisterHandler(s.handle)

	if s.config.StatsInterval > 0 {
		go s.logStats(s.config.StatsInterval)
	}

	Logger.Infof("cache server setup completed successfully")
	return nil
}

// Serve initializes the shards and runs the transport until Close is called
func (s *rpcServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport and releases all shard stores
func (s *rpcServer) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		err = s.transport.Close()
		s.shards.Range(func(_ uint64, shard serverShard) bool {
			if c, ok := shard.Store.(io.Closer); ok {
				_ = c.Close()
			}
			return true
		})
	})
	return err
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// logStats logs request statistics of every shard once per interval
func (s *rpcServer) logStats(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			for _, line := range s.statsLines() {
				Logger.Infof("%s", line)
			}
		}
	}
}

// statsLines formats one line per registered timer, sorted by name
func (s *rpcServer) statsLines() []string {
	var lines []string
	s.registry.Each(func(name string, i interface{}) {
		timer, ok := i.(metrics.Timer)
		if !ok {
			return
		}
		snap := timer.Snapshot()
		lines = append(lines, fmt.Sprintf("%-20s count=%d rate1m=%.2f/s mean=%s p99=%s",
			name,
			snap.Count(),
			snap.Rate1(),
			time.Duration(snap.Mean()),
			time.Duration(snap.Percentile(0.99)),
		))
	})
	sort.Strings(lines)
	return lines
}
