package clap

import (
	"fmt"
	"strings"
	"unicode/utf8"
	"unsafe"
)

const (
	// maxStringLen bounds how far a NUL terminator is searched for in a
	// string owned by the plugin.
	maxStringLen = 1 << 16
	// maxFeatures bounds the length of a descriptor's features array.
	maxFeatures = 1 << 12
)

// cString validates an outbound string and returns it as a NUL-terminated
// byte slice suitable for passing to the plugin.
func cString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q contains a null byte", ErrInvalidString, s)
	}
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidString, s)
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b, nil
}

// readCString copies a NUL-terminated string out of plugin memory. ok is false
// for a nil pointer.
func readCString(p *byte) (s string, ok bool, err error) {
	if p == nil {
		return "", false, nil
	}
	base := unsafe.Pointer(p)
	n := 0
	for *(*byte)(unsafe.Add(base, n)) != 0 {
		n++
		if n > maxStringLen {
			return "", true, fmt.Errorf("%w: string is not terminated within %d bytes", ErrInvalidString, maxStringLen)
		}
	}
	s = string(unsafe.Slice(p, n))
	if !utf8.ValidString(s) {
		return "", true, fmt.Errorf("%w: string is not valid UTF-8", ErrInvalidString)
	}
	return s, true, nil
}

// mandatoryString reads a descriptor field that must be present and non-empty.
func mandatoryString(p *byte, field string) (string, error) {
	s, ok, err := readCString(p)
	if err != nil {
		return "", fmt.Errorf("%w: error parsing the plugin descriptor's '%s' field: %w", ErrMalformedDescriptor, field, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: the plugin descriptor's '%s' field is a null pointer", ErrMalformedDescriptor, field)
	}
	if s == "" {
		return "", fmt.Errorf("%w: the plugin descriptor's '%s' field is empty", ErrMalformedDescriptor, field)
	}
	return s, nil
}

// optionalString reads a descriptor field where null and "" both mean absent.
func optionalString(p *byte, field string) (string, error) {
	s, _, err := readCString(p)
	if err != nil {
		return "", fmt.Errorf("%w: error parsing the plugin descriptor's '%s' field: %w", ErrMalformedDescriptor, field, err)
	}
	return s, nil
}

// stringArray reads a NUL-terminated array of NUL-terminated strings. A nil
// array is malformed.
func stringArray(p **byte, field string) ([]string, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: the plugin descriptor's '%s' array is a null pointer", ErrMalformedDescriptor, field)
	}
	base := unsafe.Pointer(p)
	var out []string
	for i := 0; ; i++ {
		if i > maxFeatures {
			return nil, fmt.Errorf("%w: the plugin descriptor's '%s' array is not terminated within %d entries", ErrMalformedDescriptor, field, maxFeatures)
		}
		elem := *(**byte)(unsafe.Add(base, uintptr(i)*unsafe.Sizeof(p)))
		if elem == nil {
			break
		}
		s, _, err := readCString(elem)
		if err != nil {
			return nil, fmt.Errorf("%w: the plugin descriptor's '%s' array is malformed at index %d: %w", ErrMalformedDescriptor, field, i, err)
		}
		out = append(out, s)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
