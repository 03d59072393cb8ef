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

// parscan filters and projects a CSV file through the scan kernel.
//
// Usage:
//
//	parscan -schema int64,varchar,float64 -filter "0 >= 100" -project 1,0 data.csv
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/matrixorigin/parscan/pkg/common/moerr"
	"github.com/matrixorigin/parscan/pkg/common/mpool"
	"github.com/matrixorigin/parscan/pkg/config"
	"github.com/matrixorigin/parscan/pkg/container/types"
	"github.com/matrixorigin/parscan/pkg/logutil"
	"github.com/matrixorigin/parscan/pkg/scan"
)

var (
	configFile = flag.String("config", "", "toml configuration file")
	schemaFlag = flag.String("schema", "", "comma separated column types, e.g. int64,varchar,float64")
	filterFlag = flag.String("filter", "", "predicate, e.g. \"0 >= 100\" (column index, operator, literal)")
	projFlag   = flag.String("project", "", "comma separated column indexes to retain, e.g. 1,0")
	outFormat  = flag.String("out-format", "row", "destination store format: row or slot")
)

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		logutil.Errorf("parscan: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if *schemaFlag == "" || flag.NArg() != 1 {
		flag.Usage()
		return moerr.NewInvalidInput(ctx, "a -schema and exactly one input file are required")
	}

	var kp config.KernelParameters
	if *configFile != "" {
		if err := config.LoadKernelParametersFromFile(ctx, *configFile, &kp); err != nil {
			return err
		}
	} else {
		kp.SetDefaultValues()
	}
	logutil.SetupMOLogger(&kp.Log)

	cols, err := parseSchema(ctx, *schemaFlag)
	if err != nil {
		return err
	}
	mp, err := mpool.NewMPool("parscan", kp.MempoolCap)
	if err != nil {
		return err
	}

	src, err := loadCSV(ctx, mp, flag.Arg(0), cols)
	if err != nil {
		return err
	}
	defer src.Free()
	logutil.Infof("loaded %d rows, %d tuple bytes", src.ItemCount(), src.BytesUsed())

	var qual scan.Qualifier
	if *filterFlag != "" {
		if qual, err = parseFilter(ctx, cols, *filterFlag); err != nil {
			return err
		}
	}
	var proj *scan.Projection
	outCols := cols
	if *projFlag != "" {
		pick, err := parsePick(ctx, *projFlag, len(cols))
		if err != nil {
			return err
		}
		proj = scan.NewColumnProjection(cols, pick)
		outCols = proj.Cols
	}

	s, err := scan.NewScanner(qual, proj, scan.OptionsFromConfig(&kp))
	if err != nil {
		return err
	}
	defer s.Close()

	dst, res, err := invoke(ctx, s, mp, src, outCols, &kp)
	if err != nil {
		return err
	}
	defer dst.Free()

	logutil.Infof("scan kept %d of %d rows (%d need recheck)",
		res.ItemCount(), src.ItemCount(), res.Rechecks().GetCardinality())
	return emit(ctx, dst, outCols)
}

// invoke runs the scanner, doubling the destination buffers and
// retrying whenever a group overflowed them.
func invoke(ctx context.Context, s *scan.Scanner, mp *mpool.MPool,
	src *scan.DataStore, outCols []types.Type, kp *config.KernelParameters) (*scan.DataStore, *scan.ResultBuffer, error) {

	rooms := uint32(kp.DefaultRoomCapacity)
	length := uint32(kp.DefaultStoreLength)
	for attempt := 0; ; attempt++ {
		dst, err := newStore(mp, outCols, rooms, length)
		if err != nil {
			return nil, nil, err
		}
		res := scan.NewResultBuffer(rooms)
		err = s.Run(ctx, src, dst, res)
		if err == nil {
			return dst, res, nil
		}
		dst.Free()
		if !moerr.IsMoErrCode(err, moerr.ErrDataStoreNoSpace) || attempt >= 4 {
			return nil, nil, err
		}
		rooms *= 2
		length *= 2
		logutil.Warnf("destination overflow, retrying with %d rooms and %d bytes", rooms, length)
	}
}

func newStore(mp *mpool.MPool, cols []types.Type, rooms, length uint32) (*scan.DataStore, error) {
	if *outFormat == "slot" {
		return scan.NewSlotStore(mp, cols, rooms, length)
	}
	return scan.NewRowStore(mp, cols, rooms, length)
}

// emit prints the destination store to stdout as CSV.
func emit(ctx context.Context, dst *scan.DataStore, cols []types.Type) error {
	w := csv.NewWriter(os.Stdout)
	record := make([]string, len(cols))
	vals := make([]types.Value, len(cols))
	nulls := make([]bool, len(cols))
	for row := uint32(0); row < dst.ItemCount(); row++ {
		if dst.Format() == scan.FormatRow {
			if err := dst.RowValues(ctx, row, vals, nulls); err != nil {
				return err
			}
		} else {
			for c := range cols {
				var err error
				if vals[c], nulls[c], err = dst.SlotValue(ctx, row, c); err != nil {
					return err
				}
			}
		}
		for c, t := range cols {
			record[c] = formatValue(t, vals[c], nulls[c])
		}
		if err := w.Write(record); err != nil {
			return moerr.ConvertGoError(ctx, err)
		}
	}
	w.Flush()
	return moerr.ConvertGoError(ctx, w.Error())
}

func formatValue(t types.Type, v types.Value, isnull bool) string {
	if isnull {
		return "\\N"
	}
	switch t.Oid {
	case types.T_bool:
		return strconv.FormatBool(v.Bool())
	case types.T_int8, types.T_int16, types.T_int32, types.T_int64:
		return strconv.FormatInt(v.Int64(), 10)
	case types.T_uint8, types.T_uint16, types.T_uint32, types.T_uint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case types.T_float32:
		return strconv.FormatFloat(float64(v.Float32()), 'g', -1, 32)
	case types.T_float64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	}
	return v.String()
}

func parseSchema(ctx context.Context, s string) ([]types.Type, error) {
	names := strings.Split(s, ",")
	cols := make([]types.Type, len(names))
	for i, name := range names {
		oid, ok := typeNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, moerr.NewInvalidInput(ctx, "unknown column type %q", name)
		}
		cols[i] = types.New(oid)
	}
	return cols, nil
}

var typeNames = map[string]types.T{
	"bool":    types.T_bool,
	"int8":    types.T_int8,
	"int16":   types.T_int16,
	"int32":   types.T_int32,
	"int64":   types.T_int64,
	"uint8":   types.T_uint8,
	"uint16":  types.T_uint16,
	"uint32":  types.T_uint32,
	"uint64":  types.T_uint64,
	"float32": types.T_float32,
	"float64": types.T_float64,
	"char":    types.T_char,
	"varchar": types.T_varchar,
}

func parsePick(ctx context.Context, s string, ncols int) ([]int, error) {
	parts := strings.Split(s, ",")
	pick := make([]int, len(parts))
	for i, p := range parts {
		c, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || c < 0 || c >= ncols {
			return nil, moerr.NewInvalidInput(ctx, "bad projection column %q", p)
		}
		pick[i] = c
	}
	return pick, nil
}
