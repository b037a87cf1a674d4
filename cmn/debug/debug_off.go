//go:build !debug

// Package debug provides assertions that compile away in release builds.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package debug

const ON = false

func Assert(bool, ...any) {}

func Assertf(bool, string, ...any) {}

func AssertNoErr(error) {}
