package autosave

import (
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var equalOpts = []cmp.Option{
	// a nil map or slice has the same (empty) set of keys as an empty one
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

// Equal reports whether a and b are structurally equal: primitives by value,
// maps, slices and structs by having the same keys with recursively equal
// values.  Types with an Equal method (eg. time.Time) are compared with it.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, equalOpts...)
}
