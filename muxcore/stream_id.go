package muxcore

import "fmt"

// StreamId identifies a logical stream multiplexed onto a single
// connection. The reserved value 0 denotes "no stream" / connection-level
// frames; ordering and hashing are by numeric value, so StreamId is a
// plain comparable type and works directly as a map key.
type StreamId uint32

// NoStream is the reserved id for connection-level frames.
const NoStream StreamId = 0

func (id StreamId) String() string {
	return fmt.Sprintf("stream#%d", uint32(id))
}
