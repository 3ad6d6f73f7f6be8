package models

// DateAnalysis is the result of scanning source files without full parsing:
// the overall date range, a per-day movement histogram, and a content hash
// of the raw bytes used to detect source changes on resume.
//
// Invariants: the histogram values sum to TotalMovements, and every key lies
// inside [MinDate, MaxDate].
type DateAnalysis struct {
	MinDate         Date         `json:"min_date"`
	MaxDate         Date         `json:"max_date"`
	TotalMovements  int          `json:"total_movements"`
	PerDateCounts   map[Date]int `json:"-"`
	FileContentHash string       `json:"file_content_hash"`
}

// MovementsBetween counts histogram movements inside [start, end] inclusive.
func (a *DateAnalysis) MovementsBetween(start, end Date) int {
	count := 0
	for d := start; !d.After(end); d = d.AddDays(1) {
		count += a.PerDateCounts[d]
	}
	return count
}

// ChunkInfo is one planned date window of an import. Chunks are contiguous,
// non-overlapping, 1-based and gap-free, covering exactly [MinDate, MaxDate].
type ChunkInfo struct {
	ChunkNumber        int  `json:"chunk_number"`
	StartDate          Date `json:"start_date"`
	EndDate            Date `json:"end_date"`
	EstimatedMovements int  `json:"estimated_movements"`
}

// FileDateInfo is the per-file portion of a multi-file analysis.
type FileDateInfo struct {
	Path         string
	FileName     string
	EarliestDate Date
	LatestDate   Date
	Dates        map[Date]struct{}
	RowCount     int
	// FilenameHint is a date range extracted from the file name, used as a
	// fallback when the content has no parseable dates.
	FilenameHintStart Date
	FilenameHintEnd   Date
}

// DateGap is a run of more than one day between two consecutive files.
type DateGap struct {
	GapStart    Date   `json:"gap_start"`
	GapEnd      Date   `json:"gap_end"`
	DaysMissing int    `json:"days_missing"`
	BeforeFile  string `json:"before_file"`
	AfterFile   string `json:"after_file"`
}

// DateOverlap is a date present in two consecutive files.
type DateOverlap struct {
	Date       Date   `json:"date"`
	FirstFile  string `json:"first_file"`
	SecondFile string `json:"second_file"`
}

// FileSetAnalysis is the richer multi-file variant of DateAnalysis. Gaps and
// overlaps are surfaced as warnings; they never block an import.
type FileSetAnalysis struct {
	Files    []FileDateInfo
	Gaps     []DateGap
	Overlaps []DateOverlap
	Combined DateAnalysis
}
