package temporal

const (
	// StopResyncSignalName asks a running resync to finish after the current chunk.
	StopResyncSignalName = "stopResync"
	// ResyncProgressQueryName returns a ResyncProgress.
	ResyncProgressQueryName = "resyncProgress"
)

type StopResyncSignal struct {
	RequestedBy string `json:"requested_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type ResyncProgress struct {
	Scanned    int `json:"scanned"`
	ChunksDone int `json:"chunks_done"`
	ChunksAll  int `json:"chunks_all"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
}
