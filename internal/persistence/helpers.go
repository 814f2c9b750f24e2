package persistence

import "time"

func timeToUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixMilli()
}

func unixMillisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}

	return time.UnixMilli(v)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}

	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}

	return *v
}
