package server

import (
	"github.com/ValentinKolb/phantom/lib/store"
	"github.com/ValentinKolb/phantom/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request against the store and returns a response.
	// If an error occurs, it should be set in the response
	Handle(req *common.Message, store store.IStore) (resp *common.Message)
}
