package ports

import "github.com/genc-murat/weatherstation/internal/core/models"

type Recorder interface {
	AddRecord(sample models.Sample)
}

type SnapshotReader interface {
	Snapshot() models.Snapshot
}

// Store is the multi-resolution rollup store shared by the sampler, the
// persistence adapter and the query server.
type Store interface {
	Recorder
	SnapshotReader
	LoadSnapshot(snap models.Snapshot)
}
