package variation

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/carbocation/pfx"
)

// sqliteTimeLayout is how SQLite renders DATETIME values as text.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Time is a store creation time as kept in the SQLite settings table: unix
// seconds on the way in. On the way out drivers may hand back an integer,
// a time.Time or text, depending on the driver and on who wrote the file.
type Time time.Time

func (t Time) Value() (driver.Value, error) {
	return time.Time(t).Unix(), nil
}

func (t *Time) Scan(v interface{}) error {
	switch which := v.(type) {
	case int64:
		*t = Time(time.Unix(which, 0))
	case time.Time:
		*t = Time(which)
	case []byte:
		return t.Scan(string(which))
	case string:
		vt, err := time.Parse(sqliteTimeLayout, which)
		if err != nil {
			return pfx.Err(err)
		}
		*t = Time(vt)
	case nil:
		*t = Time(time.Time{})
	default:
		return pfx.Err(fmt.Errorf("Cannot read a creation time from %T", v))
	}
	return nil
}
