package market

import "time"

// MicroSec is a Unix timestamp in microseconds. All session-facing
// timestamps use this unit so that replayed and live events compare
// without conversion.
type MicroSec int64

// MicroSecond is the number of MicroSec units in one second.
const MicroSecond MicroSec = 1_000_000

// Sec converts whole seconds to MicroSec.
func Sec(s int64) MicroSec {
	return MicroSec(s) * MicroSecond
}

// MSec converts whole milliseconds to MicroSec.
func MSec(ms int64) MicroSec {
	return MicroSec(ms) * 1_000
}

// FloorSec rounds t down to a multiple of unitSec seconds.
func FloorSec(t MicroSec, unitSec int64) MicroSec {
	unit := Sec(unitSec)
	return t / unit * unit
}

// CeilSec rounds t up to a multiple of unitSec seconds.
func CeilSec(t MicroSec, unitSec int64) MicroSec {
	unit := Sec(unitSec)
	return (t + unit - 1) / unit * unit
}

// Now returns the current wall-clock time as MicroSec.
func Now() MicroSec {
	return MicroSec(time.Now().UnixMicro())
}

// TimeOf converts a time.Time to MicroSec.
func TimeOf(t time.Time) MicroSec {
	return MicroSec(t.UnixMicro())
}

// Time converts t back to a time.Time in UTC.
func (t MicroSec) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

// String renders t as an RFC3339 timestamp with microsecond precision.
func (t MicroSec) String() string {
	return t.Time().Format("2006-01-02T15:04:05.000000Z07:00")
}
