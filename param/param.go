// Package param provides the typed setters that parse configuration
// strings into module-owned variables.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package param

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/v2lab/sios/cmn/cos"
)

// Setter parses a string value into a module-owned target. Setters report
// failure through the returned error and never panic.
type Setter func(val string) error

//
// integers - base handled strtol-style (0x, 0o, leading 0, decimal)
//

func Int(p *int) Setter {
	return func(val string) error {
		v, err := strconv.ParseInt(val, 0, strconv.IntSize)
		if err != nil {
			return errors.Wrapf(err, "int parameter %q", val)
		}
		*p = int(v)
		return nil
	}
}

func Int8(p *int8) Setter {
	return func(val string) error {
		v, err := strconv.ParseInt(val, 0, 8)
		if err != nil {
			return errors.Wrapf(err, "int8 parameter %q", val)
		}
		*p = int8(v)
		return nil
	}
}

func Int16(p *int16) Setter {
	return func(val string) error {
		v, err := strconv.ParseInt(val, 0, 16)
		if err != nil {
			return errors.Wrapf(err, "int16 parameter %q", val)
		}
		*p = int16(v)
		return nil
	}
}

func Int32(p *int32) Setter {
	return func(val string) error {
		v, err := strconv.ParseInt(val, 0, 32)
		if err != nil {
			return errors.Wrapf(err, "int32 parameter %q", val)
		}
		*p = int32(v)
		return nil
	}
}

func Int64(p *int64) Setter {
	return func(val string) error {
		v, err := strconv.ParseInt(val, 0, 64)
		if err != nil {
			return errors.Wrapf(err, "int64 parameter %q", val)
		}
		*p = v
		return nil
	}
}

func Uint8(p *uint8) Setter {
	return func(val string) error {
		v, err := strconv.ParseUint(val, 0, 8)
		if err != nil {
			return errors.Wrapf(err, "uint8 parameter %q", val)
		}
		*p = uint8(v)
		return nil
	}
}

func Uint16(p *uint16) Setter {
	return func(val string) error {
		v, err := strconv.ParseUint(val, 0, 16)
		if err != nil {
			return errors.Wrapf(err, "uint16 parameter %q", val)
		}
		*p = uint16(v)
		return nil
	}
}

func Uint32(p *uint32) Setter {
	return func(val string) error {
		v, err := strconv.ParseUint(val, 0, 32)
		if err != nil {
			return errors.Wrapf(err, "uint32 parameter %q", val)
		}
		*p = uint32(v)
		return nil
	}
}

func Uint64(p *uint64) Setter {
	return func(val string) error {
		v, err := strconv.ParseUint(val, 0, 64)
		if err != nil {
			return errors.Wrapf(err, "uint64 parameter %q", val)
		}
		*p = v
		return nil
	}
}

//
// floats
//

func Float32(p *float32) Setter {
	return func(val string) error {
		v, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return errors.Wrapf(err, "float parameter %q", val)
		}
		*p = float32(v)
		return nil
	}
}

func Float64(p *float64) Setter {
	return func(val string) error {
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return errors.Wrapf(err, "double parameter %q", val)
		}
		*p = v
		return nil
	}
}

// Bool accepts {y,Y,t,T,1} and {n,N,f,F,0}; an empty value means "set".
func Bool(p *bool) Setter {
	return func(val string) error {
		v, err := cos.ParseBool(val)
		if err != nil {
			return err
		}
		*p = v
		return nil
	}
}

// String replaces the target unconditionally.
func String(p *string) Setter {
	return func(val string) error {
		*p = val
		return nil
	}
}

// BoundedString truncates to maxLen and reports failure on overflow.
func BoundedString(p *string, maxLen int) Setter {
	return func(val string) error {
		if len(val) > maxLen {
			*p = val[:maxLen]
			return errors.Errorf("string %q does not fit in %d chars", val, maxLen)
		}
		*p = val
		return nil
	}
}
