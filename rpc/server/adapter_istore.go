package server

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/phantom/lib/store"
	"github.com/ValentinKolb/phantom/rpc/common"
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message, s store.IStore) *common.Message {
	if s == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	expireIn := common.MillisToDuration(req.ExpireIn)
	deleteIn := common.MillisToDuration(req.DeleteIn)

	switch req.MsgType {
	case common.MsgTKVSet:
		return common.NewResponse(req.MsgType, s.Set(req.Key, req.Value))
	case common.MsgTKVSetE:
		return common.NewResponse(req.MsgType, s.SetE(req.Key, req.Value, expireIn, deleteIn))
	case common.MsgTKVSetEIfUnset:
		return common.NewResponse(req.MsgType, s.SetEIfUnset(req.Key, req.Value, expireIn, deleteIn))
	case common.MsgTKVExpire:
		return common.NewResponse(req.MsgType, s.Expire(req.Key))
	case common.MsgTKVDelete:
		return common.NewResponse(req.MsgType, s.Delete(req.Key))
	case common.MsgTKVGet:
		val, ok, err := s.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVHas:
		ok, err := s.Has(req.Key)
		return common.NewHasResponse(ok, err)
	case common.MsgTKVInfo:
		info, err := s.GetDBInfo()
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewInfoResponse(meta, err)
	default:
		return common.NewErrorResponse(fmt.Sprintf("unsupported message type: %s", req.MsgType))
	}
}
