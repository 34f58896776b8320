package ledger

import "fmt"

// journalEntry undoes a single state change.
type journalEntry func()

// journal is an ordered undo log. A snapshot id is the journal length at the
// time the snapshot was taken; reverting replays undo entries newest-first.
//
// Entries are only recorded while a snapshot is live, that is between the
// first snapshot and the next reset. Writes with nothing to revert to are
// never recorded.
type journal struct {
	entries []journalEntry
	live    bool
}

func (j *journal) append(undo journalEntry) {
	if !j.live {
		return
	}
	j.entries = append(j.entries, undo)
}

func (j *journal) snapshot() int {
	j.live = true
	return len(j.entries)
}

func (j *journal) revert(id int) {
	if id < 0 || id > len(j.entries) {
		// A snapshot id that was never handed out is a programmer error.
		panic(fmt.Sprintf("ledger: revision id %d cannot be reverted (journal length %d)", id, len(j.entries)))
	}
	for i := len(j.entries) - 1; i >= id; i-- {
		j.entries[i]()
	}
	j.entries = j.entries[:id]
}

// reset drops all undo entries once no snapshot can be reverted to anymore.
func (j *journal) reset() {
	clear(j.entries)
	j.entries = j.entries[:0]
	j.live = false
}
