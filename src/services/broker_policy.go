package services

import "fmt"

// SnapshotTiming controls when snapshot recomputation runs during a chunked
// import.
type SnapshotTiming int

const (
	// SnapshotPerChunk recomputes snapshots after every chunk. Usable when
	// the broker's statements are self-contained per period.
	SnapshotPerChunk SnapshotTiming = iota
	// SnapshotFinalOnly defers all snapshot work to the end of the import.
	// Required when FIFO option matching spans chunk boundaries: a
	// mid-import snapshot would see positions that later chunks close.
	SnapshotFinalOnly
)

// BrokerPolicy bundles the per-broker import behavior: which parser to use
// and when snapshots run.
type BrokerPolicy struct {
	Source    string
	Snapshots SnapshotTiming
}

func PolicyFor(broker string) (BrokerPolicy, error) {
	switch broker {
	case "tastytrade":
		return BrokerPolicy{Source: "tastytrade", Snapshots: SnapshotFinalOnly}, nil
	case "ibkr":
		return BrokerPolicy{Source: "ibkr", Snapshots: SnapshotPerChunk}, nil
	default:
		return BrokerPolicy{}, fmt.Errorf("no import policy for broker: %s", broker)
	}
}
