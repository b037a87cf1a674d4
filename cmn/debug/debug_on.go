//go:build debug

// Package debug provides assertions that compile away in release builds.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package debug

import "fmt"

const ON = true

func Assert(cond bool, a ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprint(a...))
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(format, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
