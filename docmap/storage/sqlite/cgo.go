//go:build cgo

package sqlite

// Registers DriverCgo; select it with NewWithDriver(path, DriverCgo).
import _ "github.com/mattn/go-sqlite3"
