// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"obscura/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
