package analysis

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
)

// dateFormats are tried in order against each field of a row. Broker-agnostic
// on purpose: the analyzer runs before we know which columns mean what.
var dateFormats = []string{
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"20060102",
}

// minPlausibleYear guards against numeric columns (order IDs, strikes in
// compact form) parsing as dates.
const minPlausibleYear = 2000

// sniffRowDate extracts the first plausible date from a row's fields.
func sniffRowDate(fields []string) (models.Date, bool) {
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		for _, format := range dateFormats {
			t, err := time.Parse(format, field)
			if err != nil {
				continue
			}
			if t.Year() <= minPlausibleYear {
				continue
			}
			return models.DateOf(t), true
		}
	}
	return models.Date{}, false
}

// AnalyzeFiles scans the given CSV files without full parsing, producing the
// overall date range, the per-day movement histogram, and a content hash of
// the raw bytes. Rows whose date cannot be determined are skipped silently.
// Zero valid rows is a valid "nothing to import" result, not an error.
func AnalyzeFiles(paths []string) (*models.DateAnalysis, error) {
	analysis := &models.DateAnalysis{
		PerDateCounts: make(map[models.Date]int),
	}

	hasher := sha256.New()
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("error opening %s for analysis: %w", path, err)
		}
		if err := scanFileDates(io.TeeReader(file, hasher), func(d models.Date) {
			analysis.PerDateCounts[d]++
			analysis.TotalMovements++
		}); err != nil {
			file.Close()
			return nil, fmt.Errorf("error scanning %s: %w", path, err)
		}
		file.Close()
	}
	analysis.FileContentHash = hex.EncodeToString(hasher.Sum(nil))

	if analysis.TotalMovements == 0 {
		now := models.Today()
		analysis.MinDate, analysis.MaxDate = now, now
		return analysis, nil
	}

	first := true
	for d := range analysis.PerDateCounts {
		if first || d.Before(analysis.MinDate) {
			analysis.MinDate = d
		}
		if first || d.After(analysis.MaxDate) {
			analysis.MaxDate = d
		}
		first = false
	}
	return analysis, nil
}

// scanFileDates reads CSV rows (skipping the header) and calls onDate for
// every row with a sniffable date.
func scanFileDates(r io.Reader, onDate func(models.Date)) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header := true
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// Malformed rows are skipped, not fatal; the real parser
				// will report them with line numbers.
				continue
			}
			// Anything else is the reader itself failing; bailing here
			// keeps a persistent I/O error from looping forever.
			return err
		}
		if header {
			header = false
			continue
		}
		if d, ok := sniffRowDate(fields); ok {
			onDate(d)
		}
	}
}

// Filename date-hint conventions for the two supported brokers:
// tastytrade exports "..._2024-01-01_2024-06-30.csv", IBKR Flex exports
// "U1234567_20240101_20240630.csv".
var (
	tastytradeFilenameRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})_(\d{4}-\d{2}-\d{2})`)
	ibkrFilenameRe       = regexp.MustCompile(`_(\d{8})_(\d{8})`)
)

func filenameDateHint(name string) (start, end models.Date) {
	if m := tastytradeFilenameRe.FindStringSubmatch(name); m != nil {
		s, err1 := models.ParseDate(m[1])
		e, err2 := models.ParseDate(m[2])
		if err1 == nil && err2 == nil {
			return s, e
		}
	}
	if m := ibkrFilenameRe.FindStringSubmatch(name); m != nil {
		s, err1 := time.Parse("20060102", m[1])
		e, err2 := time.Parse("20060102", m[2])
		if err1 == nil && err2 == nil {
			return models.DateOf(s), models.DateOf(e)
		}
	}
	return models.Date{}, models.Date{}
}

// AnalyzeFileSet is the richer multi-file variant used for ZIP imports. In
// addition to the combined analysis it extracts per-file date ranges (with a
// filename hint fallback when a file's content has no parseable dates) and
// reports gaps and overlaps between consecutive files. Gaps and overlaps are
// warnings only; they never block an import.
func AnalyzeFileSet(paths []string) (*models.FileSetAnalysis, error) {
	result := &models.FileSetAnalysis{}

	combined, err := AnalyzeFiles(paths)
	if err != nil {
		return nil, err
	}
	result.Combined = *combined

	for _, path := range paths {
		info, err := analyzeSingleFile(path)
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, *info)
	}

	// Order files by earliest date for gap/overlap detection.
	sort.SliceStable(result.Files, func(i, j int) bool {
		return result.Files[i].EarliestDate.Before(result.Files[j].EarliestDate)
	})

	for i := 1; i < len(result.Files); i++ {
		prev, curr := &result.Files[i-1], &result.Files[i]
		if prev.EarliestDate.IsZero() || curr.EarliestDate.IsZero() {
			continue
		}
		if days := prev.LatestDate.DaysUntil(curr.EarliestDate); days > 1 {
			result.Gaps = append(result.Gaps, models.DateGap{
				GapStart:    prev.LatestDate.AddDays(1),
				GapEnd:      curr.EarliestDate.AddDays(-1),
				DaysMissing: days - 1,
				BeforeFile:  prev.FileName,
				AfterFile:   curr.FileName,
			})
		}
		for d := range curr.Dates {
			if _, ok := prev.Dates[d]; ok {
				result.Overlaps = append(result.Overlaps, models.DateOverlap{
					Date:       d,
					FirstFile:  prev.FileName,
					SecondFile: curr.FileName,
				})
			}
		}
	}
	sort.Slice(result.Overlaps, func(i, j int) bool {
		return result.Overlaps[i].Date.Before(result.Overlaps[j].Date)
	})
	return result, nil
}

func analyzeSingleFile(path string) (*models.FileDateInfo, error) {
	info := &models.FileDateInfo{
		Path:     path,
		FileName: filepath.Base(path),
		Dates:    make(map[models.Date]struct{}),
	}
	info.FilenameHintStart, info.FilenameHintEnd = filenameDateHint(info.FileName)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s for analysis: %w", path, err)
	}
	defer file.Close()

	first := true
	if err := scanFileDates(file, func(d models.Date) {
		info.RowCount++
		info.Dates[d] = struct{}{}
		if first || d.Before(info.EarliestDate) {
			info.EarliestDate = d
		}
		if first || d.After(info.LatestDate) {
			info.LatestDate = d
		}
		first = false
	}); err != nil {
		return nil, err
	}

	if info.RowCount == 0 && !info.FilenameHintStart.IsZero() {
		logger.L.Debug("No parseable dates in file content, using filename hint",
			"file", info.FileName, "hintStart", info.FilenameHintStart.String(), "hintEnd", info.FilenameHintEnd.String())
		info.EarliestDate = info.FilenameHintStart
		info.LatestDate = info.FilenameHintEnd
	}
	return info, nil
}

// HashFile computes the content hash of a single file the same way
// AnalyzeFiles does, for resume-time source validation.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening %s for hashing: %w", path, err)
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("error hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
