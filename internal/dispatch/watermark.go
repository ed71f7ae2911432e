package dispatch

// Watermark remembers the highest message id already processed by a poll
// loop. It has a single owner and is not safe for concurrent use.
type Watermark struct {
	last uint64
	set  bool
}

// Primed reports whether the watermark has seen any id.
func (w *Watermark) Primed() bool { return w.set }

// Last returns the last seen id and whether one exists.
func (w *Watermark) Last() (uint64, bool) { return w.last, w.set }

// Prime sets the watermark without reporting anything as new.
func (w *Watermark) Prime(id uint64) {
	if !w.set || id > w.last {
		w.last = id
		w.set = true
	}
}

// Advance returns true and moves the watermark when id is newer than the last
// seen id. Ids at or below the watermark return false.
func (w *Watermark) Advance(id uint64) bool {
	if w.set && id <= w.last {
		return false
	}
	w.last = id
	w.set = true
	return true
}
