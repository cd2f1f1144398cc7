/*
Copyright 2022 The Katalyst Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"os"

	"github.com/spf13/pflag"

	"github.com/effemmess/illumos-omnios/cmd/pageout-agent/app"
	"github.com/effemmess/illumos-omnios/pkg/util/general"
)

func main() {
	opts, err := app.ParseFlags(pflag.CommandLine, os.Args[1:])
	if err != nil {
		general.Fatalf("failed to parse flags: %v", err)
	}

	if err := app.Run(context.Background(), opts); err != nil {
		general.Fatalf("pageout-agent exited with error: %v", err)
	}
}
