package engine

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrMissingColumn is returned when the CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// Required header names. Order in the file does not matter.
const (
	colYear           = "Year"
	colCountry        = "Country"
	colRegion         = "region"
	colFertility      = "fertility"
	colLife           = "life"
	colChildMortality = "child_mortality"
	colGDP            = "gdp"
	colPopulation     = "population"
)

var requiredColumns = []string{
	colYear, colCountry, colRegion,
	colFertility, colLife, colChildMortality, colGDP, colPopulation,
}

// --- 1. FIELD PARSERS ---

// fastInt parses "1970" -> 1970. ok is false on anything but ASCII digits.
func fastInt(s string) (n int32, ok bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int32(c-'0')
	}
	return n, true
}

// parseMeasure parses a numeric cell. Empty and "NaN" cells are missing.
func parseMeasure(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// --- 2. MAIN LOADER ---

// LoadColumnar reads the CSV at path into a ColumnStore.
func LoadColumnar(path string, logger *zap.Logger) (*ColumnStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadReader(f, logger)
}

// LoadReader reads a CSV stream into a ColumnStore. Missing columns,
// unparsable cells and duplicate (country, year) records are load errors.
func LoadReader(r io.Reader, logger *zap.Logger) (*ColumnStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	// A. Header
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	idx := make(map[string]int, len(requiredColumns))
	for _, name := range requiredColumns {
		i, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		idx[name] = i
	}

	// B. Read Records (tokenising is sequential: quoted fields may span lines)
	var records [][]string
	var lines []int
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	totalRows := len(records)

	// C. Allocate Store ONCE
	store := &ColumnStore{
		Years:          make([]int32, totalRows),
		Fertility:      make([]float64, totalRows),
		Life:           make([]float64, totalRows),
		ChildMortality: make([]float64, totalRows),
		GDP:            make([]float64, totalRows),
		Population:     make([]float64, totalRows),
		CountryIDs:     make([]int32, totalRows),
		RegionIDs:      make([]int32, totalRows),
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > totalRows {
		numWorkers = max(totalRows, 1)
	}
	chunkSize := (totalRows + numWorkers - 1) / numWorkers

	// D. Parallel Parsing
	type localDicts struct {
		cMap  map[string]int32
		cList []string
		rMap  map[string]int32
		rList []string
		idsC  []int32
		idsR  []int32
	}
	workerDicts := make([]*localDicts, numWorkers)
	offsets := make([]int, numWorkers)

	measures := []struct {
		col  string
		dest []float64
	}{
		{colFertility, store.Fertility},
		{colLife, store.Life},
		{colChildMortality, store.ChildMortality},
		{colGDP, store.GDP},
		{colPopulation, store.Population},
	}

	var g errgroup.Group
	for w := 0; w < numWorkers; w++ {
		s := min(w*chunkSize, totalRows)
		e := min(s+chunkSize, totalRows)
		offsets[w] = s
		ld := &localDicts{
			cMap: make(map[string]int32), rMap: make(map[string]int32),
			idsC: make([]int32, e-s), idsR: make([]int32, e-s),
		}
		workerDicts[w] = ld

		g.Go(func() error {
			for row := s; row < e; row++ {
				rec := records[row]

				year, ok := fastInt(strings.TrimSpace(rec[idx[colYear]]))
				if !ok {
					return fmt.Errorf("line %d: bad %s %q", lines[row], colYear, rec[idx[colYear]])
				}
				store.Years[row] = year

				for _, m := range measures {
					v, err := parseMeasure(rec[idx[m.col]])
					if err != nil {
						return fmt.Errorf("line %d: bad %s %q: %w", lines[row], m.col, rec[idx[m.col]], err)
					}
					m.dest[row] = v
				}

				country := rec[idx[colCountry]]
				if id, ok := ld.cMap[country]; ok {
					ld.idsC[row-s] = id
				} else {
					id = int32(len(ld.cList))
					ld.cList = append(ld.cList, country)
					ld.cMap[country] = id
					ld.idsC[row-s] = id
				}

				region := rec[idx[colRegion]]
				if id, ok := ld.rMap[region]; ok {
					ld.idsR[row-s] = id
				} else {
					id = int32(len(ld.rList))
					ld.rList = append(ld.rList, region)
					ld.rMap[region] = id
					ld.idsR[row-s] = id
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// E. Merge Dictionaries (Parallel). Workers hold contiguous chunks in
	// file order, so merged IDs follow first appearance in the file.
	var dictWg sync.WaitGroup
	dictWg.Add(2)

	mergeDict := func(getList func(*localDicts) []string, getIDs func(*localDicts) []int32, globalDict *[]string, globalIDs []int32) {
		defer dictWg.Done()
		gMap := make(map[string]int32)
		*globalDict = make([]string, 0, 256)
		remaps := make([][]int32, numWorkers)

		for w := 0; w < numWorkers; w++ {
			localList := getList(workerDicts[w])
			remaps[w] = make([]int32, len(localList))
			for lid, s := range localList {
				if gid, exists := gMap[s]; exists {
					remaps[w][lid] = gid
				} else {
					gid = int32(len(*globalDict))
					*globalDict = append(*globalDict, s)
					gMap[s] = gid
					remaps[w][lid] = gid
				}
			}
		}
		for w := 0; w < numWorkers; w++ {
			localIDs := getIDs(workerDicts[w])
			dest := globalIDs[offsets[w] : offsets[w]+len(localIDs)]
			remap := remaps[w]
			for k, id := range localIDs {
				dest[k] = remap[id]
			}
		}
	}

	go mergeDict(func(d *localDicts) []string { return d.cList }, func(d *localDicts) []int32 { return d.idsC }, &store.CountryDict, store.CountryIDs)
	go mergeDict(func(d *localDicts) []string { return d.rList }, func(d *localDicts) []int32 { return d.idsR }, &store.RegionDict, store.RegionIDs)

	dictWg.Wait()

	if err := store.buildIndex(); err != nil {
		return nil, err
	}

	logger.Info("dataset loaded",
		zap.Int("rows", totalRows),
		zap.Int("countries", len(store.CountryDict)),
		zap.Int("regions", len(store.RegionDict)),
		zap.Duration("elapsed", time.Since(start)))
	return store, nil
}
