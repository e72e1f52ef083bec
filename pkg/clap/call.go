package clap

import "github.com/ebitengine/purego"

// call invokes a C function pointer and returns its integer or pointer result.
// Pointer arguments converted with uintptr(unsafe.Pointer(...)) at the call
// site stay alive for the duration of the call.
//
//go:uintptrescapes
func call(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}

// callBool is call for functions returning a C bool. Only the low byte of the
// return register is defined.
//
//go:uintptrescapes
func callBool(fn uintptr, args ...uintptr) bool {
	r1, _, _ := purego.SyscallN(fn, args...)
	return byte(r1) != 0
}
