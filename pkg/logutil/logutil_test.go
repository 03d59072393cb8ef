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

package logutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobalLoggerIsNeverNil(t *testing.T) {
	require.NotNil(t, GetGlobalLogger())
	require.NotNil(t, GetSugaredLogger())
}

func TestSetupMOLoggerWritesToFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "scan.log")
	SetupMOLogger(&LogConfig{Level: "info", Format: "json", Filename: fname})
	defer SetupMOLogger(&LogConfig{Level: "info", Format: "console"})

	Infof("kept %d rows", 42)
	Debugf("filtered below level")

	content, err := os.ReadFile(fname)
	require.NoError(t, err)
	require.Contains(t, string(content), "kept 42 rows")
	require.NotContains(t, string(content), "filtered below level")
}

func TestSetupMOLoggerBadLevelFallsBack(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "scan.log")
	SetupMOLogger(&LogConfig{Level: "no-such-level", Format: "json", Filename: fname})
	defer SetupMOLogger(&LogConfig{Level: "info", Format: "console"})

	Info("still logs at info")
	content, err := os.ReadFile(fname)
	require.NoError(t, err)
	require.Contains(t, string(content), "still logs at info")
}
