// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package pointer provides helpers for nullable columns.

Optional text columns (user photo, session user agent) are modelled as
*string, where nil maps to SQL NULL.

Key Functions:
  - To: Creates a pointer from a value literal.
  - NonZero: Like To, but maps the zero value to nil.
  - Val: Safely dereferences a pointer, returning the zero value if nil.
*/
package pointer

// To returns a pointer to the provided value.
func To[T any](v T) *T {
	return &v
}

// NonZero returns nil for the zero value of T and a pointer to v otherwise.
func NonZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// Val safely dereferences a pointer.
// If the pointer is nil, it returns the zero value of the underlying type.
func Val[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
