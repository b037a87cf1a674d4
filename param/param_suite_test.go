// Package param provides the typed setters that parse configuration
// strings into module-owned variables.
/*
 * Copyright (c) 2006-2026, V2_lab. All rights reserved.
 */
package param_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestParam(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Param Suite")
}
