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

package pageout

import (
	"testing"

	"github.com/stretchr/testify/require"
	cliflag "k8s.io/component-base/cli/flag"

	pageoutconfig "github.com/effemmess/illumos-omnios/pkg/config/pageout"
)

func TestNewOptions_Defaults(t *testing.T) {
	t.Parallel()

	as := require.New(t)
	o := NewOptions()

	as.Equal(uint64(64), o.LotsfreeFraction)
	as.Equal(uint(4), o.MinPercentCPU)
	as.Equal(uint(80), o.MaxPercentCPU)
	as.True(o.DoPageout)
	as.Equal(256, o.AsyncListSize)
}

func TestOptions_AddFlags_Parse(t *testing.T) {
	t.Parallel()

	as := require.New(t)
	o := NewOptions()

	fss := cliflag.NamedFlagSets{}
	o.AddFlags(&fss)
	fs := fss.FlagSet("pageout")

	as.NotNil(fs.Lookup("pageout-lotsfree-fraction"))
	as.NotNil(fs.Lookup("dopageout"))
	as.NotNil(fs.Lookup("pageout-deadman-seconds"))

	as.NoError(fs.Parse([]string{
		"--pageout-lotsfree-fraction=32",
		"--dopageout=false",
		"--pageout-deadman-seconds=45",
		"--pageout-desired-scanners=4",
	}))

	as.Equal(uint64(32), o.LotsfreeFraction)
	as.False(o.DoPageout)
	as.Equal(uint(45), o.PageoutDeadmanSeconds)
	as.Equal(4, o.DesiredScanners)
}

func TestOptions_ApplyTo(t *testing.T) {
	t.Parallel()

	as := require.New(t)
	o := NewOptions()
	o.LotsfreeOverride = 1000
	o.ThresholdStyle = uint(pageoutconfig.ThresholdStyleHalf)
	o.ZonePageoutNsec = 500000

	c := pageoutconfig.NewPageoutConfiguration()
	as.NoError(o.ApplyTo(c))

	as.Equal(uint64(1000), c.LotsfreeOverride)
	as.Equal(pageoutconfig.ThresholdStyleHalf, c.ThresholdStyle)
	as.Equal(int64(500000), c.ZonePageoutNsec)
}

func TestOptions_Validate_DefaultsPass(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	o := NewOptions()
	as.NoError(o.Validate())
}

func TestOptions_Validate_AggregatesEveryProblem(t *testing.T) {
	t.Parallel()
	as := require.New(t)

	o := NewOptions()
	o.MinPercentCPU = 10
	o.MaxPercentCPU = 1
	o.AsyncListSize = 0
	o.DesiredScanners = -1
	o.ThresholdStyle = 7

	err := o.Validate()
	as.Error(err)
	msg := err.Error()
	as.Contains(msg, "pageout-max-percent-cpu")
	as.Contains(msg, "pageout-async-list-size")
	as.Contains(msg, "pageout-desired-scanners")
	as.Contains(msg, "pageout-threshold-style")
}
