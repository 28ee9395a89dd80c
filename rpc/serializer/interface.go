package serializer

import (
	"fmt"

	"github.com/ValentinKolb/phantom/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers.
// Implementations must be binary safe for Message.Value and Message.Meta.
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message.
	// Fields absent from b are reset to their zero value.
	Deserialize(b []byte, msg *common.Message) error
}

// ByName returns the serializer for a configuration value (json, gob, binary)
func ByName(name string) (IRPCSerializer, error) {
	switch name {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer: %s. must be one of json, gob, binary", name)
	}
}
