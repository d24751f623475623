package traverse

import "fmt"

// Mode selects which facts a traversal collects. The set is closed; every
// mode has its own visitor table built once at init.
type Mode uint8

const (
	ImportDiscovery Mode = iota
	ExportDiscovery
	UsageCheck
)

// Modes lists every mode in processing order.
var Modes = []Mode{ImportDiscovery, ExportDiscovery, UsageCheck}

func (m Mode) String() string {
	switch m {
	case ImportDiscovery:
		return "imports"
	case ExportDiscovery:
		return "exports"
	case UsageCheck:
		return "usages"
	default:
		panic(fmt.Sprintf("traverse: unknown mode %d", uint8(m)))
	}
}
