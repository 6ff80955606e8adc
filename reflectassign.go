package hybridrediscache

import (
	"fmt"
	"reflect"
)

// assignRetrieved stores value into *dest, the same way json.Unmarshal would
// if value had gone through the codec and back. Used by GetOrLoad so a
// freshly-loaded value reaches the caller's dest without a redundant
// marshal/unmarshal round-trip through the configured Codec.
func assignRetrieved(dest, value any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("hybridrediscache: dest must be a non-nil pointer")
	}
	elem := dv.Elem()

	vv := reflect.ValueOf(value)
	if !vv.IsValid() {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	if vv.Type().AssignableTo(elem.Type()) {
		elem.Set(vv)
		return nil
	}
	if vv.Type().ConvertibleTo(elem.Type()) {
		elem.Set(vv.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("hybridrediscache: retriever returned %T, not assignable to destination", value)
}
