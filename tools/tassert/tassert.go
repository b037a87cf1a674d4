// Package tassert provides simple assert helpers for tests.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package tassert

import (
	"fmt"
	"testing"
)

func CheckFatal(t *testing.T, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("unexpected error: %v", err)
	}
}

func CheckError(t *testing.T, err error) {
	if err != nil {
		t.Helper()
		t.Errorf("unexpected error: %v", err)
	}
}

func Errorf(t *testing.T, cond bool, msg string, args ...any) {
	if !cond {
		t.Helper()
		t.Error(fmt.Sprintf(msg, args...))
	}
}

func Fatalf(t *testing.T, cond bool, msg string, args ...any) {
	if !cond {
		t.Helper()
		t.Fatal(fmt.Sprintf(msg, args...))
	}
}
