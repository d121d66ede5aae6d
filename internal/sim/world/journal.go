package world

// Journal entry shapes, one JSON object per line in the event journal.
// The "ev" tag is the discriminator.

type journalCellCreated struct {
	Ev    string `json:"ev"`
	Frame uint64 `json:"frame"`
	Cell  [2]int `json:"cell"`
}

type journalCellGenerated struct {
	Ev      string `json:"ev"`
	Frame   uint64 `json:"frame"`
	Cell    [2]int `json:"cell"`
	Content int    `json:"content"`
}

type journalCellDisposed struct {
	Ev    string `json:"ev"`
	Frame uint64 `json:"frame"`
	Cell  [2]int `json:"cell"`
}

type journalStructure struct {
	Ev        string `json:"ev"`
	Frame     uint64 `json:"frame"`
	Cell      [2]int `json:"cell"`
	Structure string `json:"structure"`
	Parts     int    `json:"parts"`
}

type journalRemoved struct {
	Ev    string `json:"ev"`
	Frame uint64 `json:"frame"`
	ID    string `json:"id"`
	Cell  [2]int `json:"cell"`
	Local bool   `json:"local"`
}

type journalMigrated struct {
	Ev    string `json:"ev"`
	Frame uint64 `json:"frame"`
	ID    string `json:"id"`
	From  [2]int `json:"from"`
	To    [2]int `json:"to"`
}

type journalPeerState struct {
	Ev        string `json:"ev"`
	Frame     uint64 `json:"frame"`
	PeerID    string `json:"peer_id"`
	PeerFrame uint64 `json:"peer_frame"`
	Digest    string `json:"digest"`
}

type journalFrame struct {
	Ev        string  `json:"ev"`
	Frame     uint64  `json:"frame"`
	ElapsedMS float64 `json:"elapsed_ms"`
	Overrun   bool    `json:"overrun"`
	Cells     int     `json:"cells"`
	Content   int     `json:"content"`
}

// journal writes one entry, stamping the discriminator from the entry's
// concrete type. Nil journal means the concern is disabled; never fatal.
func (w *World) journal(v any) {
	if w.deps.Journal == nil {
		return
	}
	switch e := v.(type) {
	case journalCellCreated:
		e.Ev = "cell_created"
		v = e
	case journalCellGenerated:
		e.Ev = "cell_generated"
		v = e
	case journalCellDisposed:
		e.Ev = "cell_disposed"
		v = e
	case journalStructure:
		e.Ev = "structure"
		v = e
	case journalRemoved:
		e.Ev = "removed"
		v = e
	case journalMigrated:
		e.Ev = "migrated"
		v = e
	case journalPeerState:
		e.Ev = "peer_state"
		v = e
	case journalFrame:
		e.Ev = "frame"
		v = e
	}
	if err := w.deps.Journal.Write(v); err != nil {
		w.logf("journal write: %v", err)
	}
}
