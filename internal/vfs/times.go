package vfs

import "time"

// Reserved nanosecond-field sentinels for utimensat timestamp arguments.
const (
	UTIME_NOW  = 0x3FFFFFFF
	UTIME_OMIT = 0x3FFFFFFE
)

// Timespec is a wall-clock timestamp with nanosecond precision.
type Timespec struct {
	Sec  int64
	Nsec int64
}

func TimespecNow() Timespec {
	now := time.Now()
	return Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())}
}

// SetAsUtime applies a utimensat candidate value to ts: the UTIME_NOW
// sentinel sets the current time, UTIME_OMIT leaves ts unchanged, and any
// other value is taken literally.
func (ts *Timespec) SetAsUtime(t Timespec) {
	switch t.Nsec {
	case UTIME_NOW:
		*ts = TimespecNow()
	case UTIME_OMIT:
	default:
		*ts = t
	}
}
