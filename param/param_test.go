// Package param provides the typed setters that parse configuration
// strings into module-owned variables.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package param_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/v2lab/sios/param"
)

var _ = Describe("Setters", func() {
	Describe("integers", func() {
		It("parses decimal, hex and octal like strtol", func() {
			var v int
			set := param.Int(&v)
			Expect(set("42")).To(Succeed())
			Expect(v).To(Equal(42))
			Expect(set("0x10")).To(Succeed())
			Expect(v).To(Equal(16))
			Expect(set("010")).To(Succeed())
			Expect(v).To(Equal(8))
			Expect(set("-7")).To(Succeed())
			Expect(v).To(Equal(-7))
		})

		It("rejects garbage and overflow", func() {
			var v8 int8
			set := param.Int8(&v8)
			Expect(set("troubles")).NotTo(Succeed())
			Expect(set("300")).NotTo(Succeed())
			Expect(set("127")).To(Succeed())
			Expect(v8).To(Equal(int8(127)))
		})

		It("keeps unsigned parameters unsigned", func() {
			var v uint16
			set := param.Uint16(&v)
			Expect(set("65535")).To(Succeed())
			Expect(v).To(Equal(uint16(65535)))
			Expect(set("-1")).NotTo(Succeed())
			Expect(set("65536")).NotTo(Succeed())
		})

		It("covers the whole width table", func() {
			var (
				i16 int16
				i32 int32
				i64 int64
				u8  uint8
				u32 uint32
				u64 uint64
			)
			Expect(param.Int16(&i16)("-32768")).To(Succeed())
			Expect(param.Int32(&i32)("1048576")).To(Succeed())
			Expect(param.Int64(&i64)("-9000000000")).To(Succeed())
			Expect(param.Uint8(&u8)("255")).To(Succeed())
			Expect(param.Uint32(&u32)("4294967295")).To(Succeed())
			Expect(param.Uint64(&u64)("18446744073709551615")).To(Succeed())
			Expect(i16).To(Equal(int16(-32768)))
			Expect(i64).To(Equal(int64(-9000000000)))
			Expect(u64).To(Equal(uint64(18446744073709551615)))
		})
	})

	Describe("floats", func() {
		It("parses float and double", func() {
			var f float32
			var d float64
			Expect(param.Float32(&f)("2.5")).To(Succeed())
			Expect(param.Float64(&d)("-0.001")).To(Succeed())
			Expect(f).To(Equal(float32(2.5)))
			Expect(d).To(Equal(-0.001))
			Expect(param.Float64(&d)("nope")).NotTo(Succeed())
		})
	})

	Describe("bool", func() {
		It("accepts the historical spellings", func() {
			var v bool
			set := param.Bool(&v)
			for _, s := range []string{"y", "Y", "t", "T", "1"} {
				v = false
				Expect(set(s)).To(Succeed())
				Expect(v).To(BeTrue(), "spelling %q", s)
			}
			for _, s := range []string{"n", "N", "f", "F", "0"} {
				v = true
				Expect(set(s)).To(Succeed())
				Expect(v).To(BeFalse(), "spelling %q", s)
			}
		})

		It("treats an empty value as set", func() {
			var v bool
			Expect(param.Bool(&v)("")).To(Succeed())
			Expect(v).To(BeTrue())
		})

		It("rejects anything else", func() {
			var v bool
			Expect(param.Bool(&v)("maybe")).NotTo(Succeed())
		})
	})

	Describe("strings", func() {
		It("copies plain strings", func() {
			var s string
			Expect(param.String(&s)("/dev/sios_light")).To(Succeed())
			Expect(s).To(Equal("/dev/sios_light"))
		})

		It("truncates and reports bounded overflow", func() {
			var s string
			set := param.BoundedString(&s, 8)
			Expect(set("short")).To(Succeed())
			Expect(s).To(Equal("short"))

			Expect(set("much too long for the buffer")).NotTo(Succeed())
			Expect(s).To(Equal("much too"))
		})
	})
})
