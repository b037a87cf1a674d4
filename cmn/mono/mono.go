// Package mono provides a monotonic clock for the pumps' elapsed-time
// accounting. Wall-clock adjustments must never feed back into source
// periods.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package mono

import "time"

var started = time.Now()

// NanoTime returns monotonic nanoseconds since process start.
func NanoTime() int64 { return int64(time.Since(started)) }

// Since returns monotonic nanoseconds since a prior NanoTime reading.
func Since(prev int64) int64 { return NanoTime() - prev }

// SinceUsec returns monotonic microseconds since a prior NanoTime reading.
func SinceUsec(prev int64) int64 { return Since(prev) / 1000 }
