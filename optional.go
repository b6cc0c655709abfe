// optional.go provides helpers around typing.Optional.

package avbridge

import "github.com/xaionaro-go/typing"

func orZero[T any](in typing.Optional[T]) T {
	if !in.IsSet() {
		var zero T
		return zero
	}
	return in.Get()
}
