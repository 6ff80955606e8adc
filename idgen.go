package hybridrediscache

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"time"

	"github.com/sony/sonyflake/v2"
)

// newInstanceID generates the opaque, process-stable instance identifier
// every bus message carries (spec §3 "Instance Identity"). It is generated
// once at construction and held for the engine's lifetime.
//
// Grounded on pkg/util/xid: a Sonyflake id is time-ordered, cheap to
// generate, and — unlike a random UUID — carries no risk of looking
// meaningful to a reader, which matches the spec's "opaque" requirement
// better than a human-readable hostname would. machineID mirrors xid's
// hostname-hash fallback strategy (pkg/util/xid/machine.go) rather than its
// full private-IP/K8s-downward-API chain, since the only property this
// module needs from the machine id is "distinct enough across processes on
// the same host," not cluster-wide operational identification.
func newInstanceID() (string, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		MachineID: machineID,
	})
	if err != nil {
		return "", fmt.Errorf("hybridrediscache: create instance id generator: %w", err)
	}
	id, err := sf.NextID()
	if err != nil {
		return "", fmt.Errorf("hybridrediscache: generate instance id: %w", err)
	}
	return strconv.FormatInt(id, 36), nil
}

// machineID hashes the hostname (when available), the pid and the current
// time into sonyflake's 16-bit machine-id space, so generators created by
// different processes on one host, or one after another in the same process,
// get different machine ids barring a 16-bit hash collision.
func machineID() (int, error) {
	h := fnv.New32a()
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		_, _ = h.Write([]byte(hostname))
	}
	_, _ = fmt.Fprintf(h, "pid-%d-%d", os.Getpid(), time.Now().UnixNano())
	return int(h.Sum32() & 0xFFFF), nil
}
