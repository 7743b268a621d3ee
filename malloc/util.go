package malloc

import "fmt"
import "errors"

// ErrorOutofMemory returned when memory source cannot satisfy a new
// arena or page.
var ErrorOutofMemory = errors.New("malloc.outofmemory")

// nil sentinel for block handles into the block bank.
const nilblock = uint32(0)

var zerobase [8]byte

func panicerr(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}

func maxint64(x, y int64) int64 {
	if x > y {
		return x
	}
	return y
}

func alignforward(off, align int64) int64 {
	mask := align - 1
	return (off + mask) &^ mask
}
