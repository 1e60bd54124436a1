// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package observability

// Observable interface for all components that need observability
type Observable interface {
	// GetComponentName returns the component identifier
	GetComponentName() string
}

// Step starts a debug step when the observer runs in debug mode and returns
// a no-op completion otherwise.
func Step(o *StandardObserver, component, step, filePath string) func(success bool, details string) {
	if o == nil || o.DebugObserver == nil {
		return func(bool, string) {}
	}
	return o.DebugObserver.StartStep(component, step, filePath)
}
