// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hpcdb

// Version is the current release version of hpcdb in use.
func Version() string {
	return "v0.1.0"
}
