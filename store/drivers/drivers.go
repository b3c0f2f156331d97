// Package drivers is a convenience package that registers all built-in
// storage drivers. Import it with a blank identifier to make all drivers
// available:
//
//	import _ "github.com/nuln/fstream/store/drivers"
package drivers

import (
	"github.com/nuln/fstream/store"
	_ "github.com/nuln/fstream/store/driver/local"
	_ "github.com/nuln/fstream/store/driver/rclone"
	_ "github.com/nuln/fstream/store/driver/s3"
	_ "github.com/nuln/fstream/store/driver/sharded"
)

// List returns a list of all registered storage drivers.
func List() []string {
	return store.Drivers()
}
