package lineartime

import "time"

// unixEpoch is 1970-01-01T00:00 on the linear scale.
const unixEpoch = Time(unixEpochDay) * TicksPerDay

// FromUnix converts seconds since the Unix epoch.
func FromUnix(sec int64) Time {
	return unixEpoch + Time(sec)*TicksPerSecond
}

// FromUnixMilli converts milliseconds since the Unix epoch.
func FromUnixMilli(msec int64) Time {
	return unixEpoch + Time(msec)
}

// Unix returns t as seconds since the Unix epoch, rounding towards negative infinity.
func (t Time) Unix() int64 {
	return floorDiv(int64(t-unixEpoch), int64(TicksPerSecond))
}

// UnixMilli returns t as milliseconds since the Unix epoch.
func (t Time) UnixMilli() int64 {
	return int64(t - unixEpoch)
}

// FromGoTime returns the wall clock reading of tm in its own location.
// Pass tm.UTC() to obtain a UTC instant.
func FromGoTime(tm time.Time) Time {
	y, mo, d := tm.Date()
	return DateTime(y, int(mo), d, tm.Hour(), tm.Minute(), tm.Second(), tm.Nanosecond()/int(time.Millisecond))
}

// GoTime interprets t as a UTC instant.
func (t Time) GoTime() time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}
