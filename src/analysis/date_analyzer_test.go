package analysis

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/username/folioimport/src/models"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAnalyzeFilesHistogramSumsToTotal(t *testing.T) {
	path := writeFixture(t, "statement.csv",
		"Date,Type,Value\n"+
			"2024-06-01T10:00:00,Trade,-100.00\n"+
			"2024-06-01T11:30:00,Trade,50.00\n"+
			"2024-06-03T09:00:00,Money Movement,500.00\n")

	a, err := AnalyzeFiles([]string{path})
	require.NoError(t, err)
	require.Equal(t, 3, a.TotalMovements)
	require.Equal(t, models.NewDate(2024, time.June, 1), a.MinDate)
	require.Equal(t, models.NewDate(2024, time.June, 3), a.MaxDate)
	require.NotEmpty(t, a.FileContentHash)

	sum := 0
	for d, c := range a.PerDateCounts {
		require.False(t, d.Before(a.MinDate))
		require.False(t, d.After(a.MaxDate))
		sum += c
	}
	require.Equal(t, a.TotalMovements, sum)
	require.Equal(t, 2, a.PerDateCounts[models.NewDate(2024, time.June, 1)])
}

func TestAnalyzeFilesHeaderOnlyIsEmptyResult(t *testing.T) {
	path := writeFixture(t, "empty.csv", "Date,Type,Value\n")

	a, err := AnalyzeFiles([]string{path})
	require.NoError(t, err)
	require.Zero(t, a.TotalMovements)
	require.Equal(t, a.MinDate, a.MaxDate)
	require.False(t, a.MinDate.IsZero())
}

func TestAnalyzeFilesSkipsImplausibleYears(t *testing.T) {
	path := writeFixture(t, "odd.csv",
		"Date,Value\n"+
			"1999-05-05,1.00\n"+
			"not-a-date,2.00\n"+
			"2024-05-05,3.00\n")

	a, err := AnalyzeFiles([]string{path})
	require.NoError(t, err)
	require.Equal(t, 1, a.TotalMovements)
	require.Equal(t, models.NewDate(2024, time.May, 5), a.MinDate)
}

func TestAnalyzeFilesHashChangesWithContent(t *testing.T) {
	first := writeFixture(t, "a.csv", "Date\n2024-01-05\n")
	second := writeFixture(t, "b.csv", "Date\n2024-01-06\n")

	a1, err := AnalyzeFiles([]string{first})
	require.NoError(t, err)
	a2, err := AnalyzeFiles([]string{second})
	require.NoError(t, err)
	require.NotEqual(t, a1.FileContentHash, a2.FileContentHash)
}

func TestAnalyzeFileSetDetectsGapsAndOverlaps(t *testing.T) {
	dir := t.TempDir()
	jan := filepath.Join(dir, "jan.csv")
	require.NoError(t, os.WriteFile(jan, []byte(
		"Date,Value\n2024-01-02,1\n2024-01-31,1\n"), 0o644))
	march := filepath.Join(dir, "mar.csv")
	require.NoError(t, os.WriteFile(march, []byte(
		"Date,Value\n2024-03-01,1\n2024-03-15,1\n"), 0o644))
	overlap := filepath.Join(dir, "mid.csv")
	require.NoError(t, os.WriteFile(overlap, []byte(
		"Date,Value\n2024-03-15,1\n2024-03-20,1\n"), 0o644))

	result, err := AnalyzeFileSet([]string{march, jan, overlap})
	require.NoError(t, err)
	require.Equal(t, 6, result.Combined.TotalMovements)

	require.Len(t, result.Gaps, 1)
	require.Equal(t, models.NewDate(2024, time.February, 1), result.Gaps[0].GapStart)
	require.Equal(t, models.NewDate(2024, time.February, 29), result.Gaps[0].GapEnd)
	require.Equal(t, 29, result.Gaps[0].DaysMissing)
	require.Equal(t, "jan.csv", result.Gaps[0].BeforeFile)
	require.Equal(t, "mar.csv", result.Gaps[0].AfterFile)

	require.Len(t, result.Overlaps, 1)
	require.Equal(t, models.NewDate(2024, time.March, 15), result.Overlaps[0].Date)
}

func TestFilenameDateHints(t *testing.T) {
	s, e := filenameDateHint("tastytrade_transactions_2024-01-01_2024-06-30.csv")
	require.Equal(t, models.NewDate(2024, time.January, 1), s)
	require.Equal(t, models.NewDate(2024, time.June, 30), e)

	s, e = filenameDateHint("U1234567_20240101_20240630.csv")
	require.Equal(t, models.NewDate(2024, time.January, 1), s)
	require.Equal(t, models.NewDate(2024, time.June, 30), e)

	s, e = filenameDateHint("statement.csv")
	require.True(t, s.IsZero())
	require.True(t, e.IsZero())
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("device gone")
}

func TestScanFileDatesStopsOnReaderError(t *testing.T) {
	err := scanFileDates(failingReader{}, func(models.Date) {})
	require.Error(t, err)
	require.Contains(t, err.Error(), "device gone")
}

func TestHashFileMatchesContent(t *testing.T) {
	path := writeFixture(t, "x.csv", "Date\n2024-01-05\n")
	h1, err := HashFile(path)
	require.NoError(t, err)
	h2, err := HashFile(path)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	require.NoError(t, os.WriteFile(path, []byte("Date\n2024-01-06\n"), 0o644))
	h3, err := HashFile(path)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
