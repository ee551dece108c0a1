// Package fmtx prints an error chain one layer at a time, for debugging
// the wrapped parse/spawn errors this module produces.
package fmtx

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/davecgh/go-spew/spew"
)

// PrintErrChain walks err's Unwrap chain and prints each layer with its
// concrete type.
func PrintErrChain(err error) {
	if err == nil {
		fmt.Println("<nil>")
		return
	}

	i := 0
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Printf("[%d] %T: %v\n", i, e, e)
		i++
	}
}

// PrintErrChainDebug is PrintErrChain plus a full field dump of each
// layer, for the rarer case where the message alone doesn't explain a
// parse or spawn failure (e.g. an *os.PathError buried under several
// fmt.Errorf wraps).
func PrintErrChainDebug(err error) {
	i := 0
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Printf("[%d] %T\n", i, e)
		fmt.Printf("   Error(): %v\n", e)
		spew.Dump(e)

		rv := reflect.ValueOf(e)
		rt := reflect.TypeOf(e)
		if rt.Kind() == reflect.Ptr {
			rv = rv.Elem()
			rt = rt.Elem()
		}
		if rt.Kind() == reflect.Struct {
			for j := 0; j < rt.NumField(); j++ {
				f := rt.Field(j)
				v := rv.Field(j)
				if v.CanInterface() {
					fmt.Printf("   Field %s (%s): %+v\n", f.Name, f.Type, v.Interface())
				}
			}
		}

		i++
	}
}
