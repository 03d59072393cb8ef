// Copyright 2021 - 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"

	"github.com/BurntSushi/toml"
	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/logutil"
)

// KernelParameters of the scan kernel.
type KernelParameters struct {
	// groupSize is the number of cooperating lanes per group.
	// default: 64
	GroupSize int64 `toml:"groupSize"`

	// maxConcurrentGroups caps groups running at once. default: number of CPUs
	MaxConcurrentGroups int64 `toml:"maxConcurrentGroups"`

	// defaultRoomCapacity of result buffers and destination stores. default: 8192
	DefaultRoomCapacity int64 `toml:"defaultRoomCapacity"`

	// defaultStoreLength of a row format arena, in bytes. default: 1 << 22
	DefaultStoreLength int64 `toml:"defaultStoreLength"`

	// mempoolCap limits the bytes a pool hands out. 0 means no limit. default: 0
	MempoolCap int64 `toml:"mempoolCap"`

	// log of the process
	Log logutil.LogConfig `toml:"log"`
}

// SetDefaultValues fills the zero fields with defaults.
func (kp *KernelParameters) SetDefaultValues() {
	if kp.GroupSize <= 0 {
		kp.GroupSize = 64
	}
	if kp.MaxConcurrentGroups < 0 {
		kp.MaxConcurrentGroups = 0 // resolved to GOMAXPROCS by the scanner
	}
	if kp.DefaultRoomCapacity <= 0 {
		kp.DefaultRoomCapacity = 8192
	}
	if kp.DefaultStoreLength <= 0 {
		kp.DefaultStoreLength = 1 << 22
	}
	if kp.Log.Level == "" {
		kp.Log.Level = "info"
	}
	if kp.Log.Format == "" {
		kp.Log.Format = "console"
	}
}

// LoadKernelParametersFromFile reads params from a toml file and fills
// the defaults afterwards.
func LoadKernelParametersFromFile(ctx context.Context, fname string, kp *KernelParameters) error {
	metadata, err := toml.DecodeFile(fname, kp)
	if err != nil {
		return moerr.NewBadConfig(ctx, "decode %s: %v", fname, err)
	}
	for _, key := range metadata.Undecoded() {
		logutil.Warnf("unknown configuration item %s in %s", key.String(), fname)
	}
	kp.SetDefaultValues()
	return nil
}
