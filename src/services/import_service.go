package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/username/folioimport/src/analysis"
	"github.com/username/folioimport/src/config"
	"github.com/username/folioimport/src/converter"
	"github.com/username/folioimport/src/database"
	"github.com/username/folioimport/src/logger"
	"github.com/username/folioimport/src/models"
	"github.com/username/folioimport/src/parsers"
	"github.com/username/folioimport/src/persistence"
	"github.com/username/folioimport/src/progress"
	"github.com/username/folioimport/src/security/validation"
	"github.com/username/folioimport/src/session"
	"github.com/username/folioimport/src/snapshots"
	"github.com/username/folioimport/src/utils"
)

// ImportRequest describes one upload to import. SourcePath must point at a
// saved copy of the upload; it is kept after the import so the session can
// be resumed.
type ImportRequest struct {
	AccountID  int64
	SourceName string
	SourcePath string
}

type ImportService interface {
	// StartImport validates the request synchronously, then runs the import
	// in a background goroutine. Progress is observed through Progress().
	StartImport(req ImportRequest) error
	// Resume re-runs the non-completed chunks of an interrupted session.
	Resume(token string) error
	// Cancel stops the running import at the next chunk boundary or record.
	Cancel() error
	Progress() progress.Snapshot
	Sessions() ([]*models.ImportSession, error)
	// ResetData wipes all imported records and snapshots.
	ResetData() error
}

type importService struct {
	db          *sql.DB
	accounts    *database.AccountStore
	sessions    *session.Manager
	planner     *analysis.Planner
	converter   *converter.Converter
	tickerSnaps *snapshots.TickerSnapshotManager
	financials  *snapshots.BrokerFinancialManager
	tracker     *progress.Tracker

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewImportService(db *sql.DB) ImportService {
	planner := analysis.NewPlanner()
	if config.Cfg != nil {
		planner.Ceiling = config.Cfg.ChunkMovementCeiling
		planner.BaseWindowDays = config.Cfg.ChunkBaseWindowDays
		planner.MaxWindowDays = config.Cfg.ChunkMaxWindowDays
	}
	return &importService{
		db:          db,
		accounts:    database.NewAccountStore(db),
		sessions:    session.NewManager(db),
		planner:     planner,
		converter:   converter.NewConverter(),
		tickerSnaps: snapshots.NewTickerSnapshotManager(db),
		financials:  snapshots.NewBrokerFinancialManager(db),
		tracker:     progress.NewTracker(),
	}
}

func (s *importService) Progress() progress.Snapshot {
	return s.tracker.Get()
}

func (s *importService) Sessions() ([]*models.ImportSession, error) {
	return s.sessions.GetAll()
}

func (s *importService) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.cancel == nil {
		return fmt.Errorf("no import in progress")
	}
	logger.L.Info("Import cancellation requested")
	s.cancel()
	return nil
}

func (s *importService) ResetData() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrImportInProgress
	}
	return database.ResetImportedData(s.db)
}

// acquire claims the single import slot. An active import is cancelled and
// waited out first; its session stays resumable. Release through finish().
func (s *importService) acquire() (context.Context, error) {
	for {
		s.mu.Lock()
		if !s.running {
			ctx, cancel := context.WithCancel(context.Background())
			s.running = true
			s.cancel = cancel
			s.done = make(chan struct{})
			s.mu.Unlock()
			return ctx, nil
		}
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		logger.L.Info("Cancelling active import to start a new one")
		cancel()
		<-done
	}
}

func (s *importService) finish() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
	s.cancel = nil
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()
}

func (s *importService) StartImport(req ImportRequest) error {
	if err := validation.ValidateUploadExtension(req.SourceName); err != nil {
		return err
	}
	account, err := s.accounts.GetByID(req.AccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	policy, err := PolicyFor(account.Broker)
	if err != nil {
		return err
	}

	ctx, err := s.acquire()
	if err != nil {
		return err
	}
	s.tracker.Reset()
	s.tracker.Set(progress.PhaseValidating, "validating upload", 0)

	go func() {
		defer s.finish()
		if err := s.run(ctx, account, policy, req, nil); err != nil {
			logger.L.Error("Import failed", "accountID", req.AccountID, "error", err)
		}
	}()
	return nil
}

func (s *importService) Resume(token string) error {
	sess, err := s.sessions.GetByToken(token)
	if err != nil {
		return err
	}
	if sess.Phase == models.PhaseCompleted {
		return ErrSessionNotResumable
	}
	if err := s.sessions.ValidateSourceHash(sess); err != nil {
		return err
	}
	account, err := s.accounts.GetByID(sess.BrokerAccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	policy, err := PolicyFor(account.Broker)
	if err != nil {
		return err
	}

	ctx, err := s.acquire()
	if err != nil {
		return err
	}
	s.tracker.Reset()
	s.tracker.Set(progress.PhaseValidating, "resuming import session", 0)
	logger.L.Info("Resuming import session", "token", token, "processedMovements", sess.ProcessedMovements)

	req := ImportRequest{AccountID: sess.BrokerAccountID, SourceName: sess.SourceFileName, SourcePath: sess.SourceFilePath}
	go func() {
		defer s.finish()
		if err := s.run(ctx, account, policy, req, sess); err != nil {
			logger.L.Error("Import resume failed", "token", token, "error", err)
		}
	}()
	return nil
}

// run executes a full import, or the remainder of one when resumed is set.
func (s *importService) run(ctx context.Context, account *models.BrokerAccount, policy BrokerPolicy, req ImportRequest, resumed *models.ImportSession) error {
	csvPaths, cleanup, err := s.unpack(req.SourcePath)
	if err != nil {
		return s.fail(resumed, err)
	}
	defer cleanup()

	s.tracker.Set(progress.PhaseProcessingFile, "analyzing statement dates", 5)
	fileSet, err := analysis.AnalyzeFileSet(csvPaths)
	if err != nil {
		return s.fail(resumed, err)
	}
	for _, gap := range fileSet.Gaps {
		logger.L.Warn("Date gap between statement files",
			"from", gap.GapStart.String(), "to", gap.GapEnd.String(), "daysMissing", gap.DaysMissing,
			"beforeFile", gap.BeforeFile, "afterFile", gap.AfterFile)
	}
	for _, overlap := range fileSet.Overlaps {
		logger.L.Warn("Date overlap between statement files",
			"date", overlap.Date.String(), "firstFile", overlap.FirstFile, "secondFile", overlap.SecondFile)
	}
	combined := &fileSet.Combined

	sess := resumed
	if sess == nil {
		hash, err := analysis.HashFile(req.SourcePath)
		if err != nil {
			return s.fail(nil, err)
		}
		chunks := s.planner.Plan(combined)
		sess, err = s.sessions.CreateSession(account.ID, req.SourceName, req.SourcePath, hash, combined, chunks)
		if err != nil {
			return s.fail(nil, err)
		}
	}

	if combined.TotalMovements == 0 {
		// Nothing to import; an empty statement is still a successful run.
		if err := s.sessions.SetPhase(sess.ID, models.PhaseCompleted); err != nil {
			return err
		}
		s.tracker.Set(progress.PhaseCompleted, "no movements found in statement", 100)
		return nil
	}

	s.tracker.Set(progress.PhaseProcessingData, "parsing statements", 10)
	batch, err := s.parseAndConvert(policy, csvPaths, account.ID)
	if err != nil {
		return s.fail(sess, err)
	}

	if resumed != nil {
		if err := s.sessions.SetPhase(sess.ID, models.PhaseChunkProcessing); err != nil {
			return s.fail(sess, err)
		}
	}
	works, err := s.sessions.RemainingChunks(sess.ID)
	if err != nil {
		return s.fail(sess, err)
	}
	meta, err := s.processChunks(ctx, sess, policy, batch, works)
	if err != nil {
		return s.fail(sess, err)
	}

	// The final passes are scoped by the whole converted batch, not by the
	// chunks this run re-processed: a resume skips completed chunks, but
	// their tickers still need recomputation. The end bound extends to today
	// so open positions stay covered past the statement's last day.
	scope := batch.Metadata(sess.BrokerAccountID)
	snapEnd := sess.RangeEnd
	if today := models.Today(); today.After(snapEnd) {
		snapEnd = today
	}

	s.tracker.Set(progress.PhaseCalculatingSnapshots, "recomputing account financials", 90)
	if err := s.sessions.SetPhase(sess.ID, models.PhaseSnapshot1); err != nil {
		return s.fail(sess, err)
	}
	if r := s.financials.ProcessImport(scope, snapEnd, true); !r.Success {
		logger.L.Warn("Broker financial recomputation reported errors", "errors", r.Errors)
	}

	s.tracker.Set(progress.PhaseCalculatingSnapshots, "recomputing ticker snapshots", 95)
	if err := s.sessions.SetPhase(sess.ID, models.PhaseSnapshot2); err != nil {
		return s.fail(sess, err)
	}
	if r := s.tickerSnaps.ProcessImport(scope, snapEnd, true); !r.Success {
		logger.L.Warn("Ticker snapshot recomputation reported errors", "errors", r.Errors)
	}

	if err := s.sessions.SetPhase(sess.ID, models.PhaseCompleted); err != nil {
		return s.fail(sess, err)
	}
	s.tracker.Set(progress.PhaseCompleted, "import completed", 100)
	logger.L.Info("Import completed", "token", sess.Token, "movements", meta.TotalMovements)
	return nil
}

// unpack resolves the upload into the CSV files to parse. Zip archives are
// extracted into a fresh directory that cleanup removes; the upload itself
// stays on disk for resume.
func (s *importService) unpack(sourcePath string) ([]string, func(), error) {
	noop := func() {}
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open upload: %w", err)
	}
	_, magicErr := validation.ValidateFileContentByMagicBytes(f)
	f.Close()
	if magicErr != nil {
		return nil, noop, magicErr
	}

	if !strings.EqualFold(filepath.Ext(sourcePath), ".zip") {
		return []string{sourcePath}, noop, nil
	}

	tempDir := os.TempDir()
	if config.Cfg != nil && config.Cfg.ImportTempDir != "" {
		tempDir = config.Cfg.ImportTempDir
	}
	extractDir, err := os.MkdirTemp(tempDir, "folioimport-extract-")
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(extractDir); err != nil {
			logger.L.Warn("Failed to remove extraction dir", "dir", extractDir, "error", err)
		}
	}
	paths, err := utils.ExtractZip(sourcePath, extractDir)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return paths, cleanup, nil
}

func (s *importService) parseAndConvert(policy BrokerPolicy, csvPaths []string, accountID int64) (*models.RecordBatch, error) {
	parser, err := parsers.GetParser(policy.Source)
	if err != nil {
		return nil, err
	}
	parsed := &models.ParseResult{}
	for _, path := range csvPaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open statement %q: %w", path, err)
		}
		result, err := parser.Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
		}
		parsed.Merge(result)
	}
	if len(parsed.Errors) > 0 {
		logger.L.Warn("Some statement rows could not be parsed", "badRows", len(parsed.Errors))
	}
	if len(parsed.Transactions) == 0 {
		return nil, fmt.Errorf("%w: no parseable transactions found", ErrParsingFailed)
	}

	conv := s.converter.Convert(parsed.Transactions, accountID)
	for _, convErr := range conv.Errors {
		logger.L.Warn("Transaction skipped during conversion", "line", convErr.Line, "error", convErr.Err)
	}
	return conv.Batch, nil
}

// processChunks persists the batch chunk by chunk. After each chunk the
// session bookkeeping is updated atomically and memory is handed back to the
// runtime, keeping peak usage near one chunk's worth of records.
func (s *importService) processChunks(ctx context.Context, sess *models.ImportSession, policy BrokerPolicy, batch *models.RecordBatch, works []models.ImportSessionChunk) (*models.ImportMetadata, error) {
	engine := persistence.NewEngine(s.db)
	ct := progress.NewChunkTracker(s.tracker)
	ct.Begin(sess.TotalChunks, sess.TotalEstimatedMovements, sess.ProcessedMovements)
	meta := models.NewImportMetadata()

	for _, chunk := range works {
		if ctx.Err() != nil {
			return meta, ctx.Err()
		}
		ct.StartChunk(chunk.ChunkNumber)
		started := time.Now()

		sub := batch.FilterRange(chunk.StartDate, chunk.EndDate)
		if sub.Len() == 0 {
			if err := s.sessions.MarkChunkCompleted(sess.ID, chunk.ChunkNumber, 0, time.Since(started).Milliseconds()); err != nil {
				return meta, err
			}
			ct.FinishChunk(chunk.ChunkNumber, 0, time.Since(started))
			continue
		}

		result, err := engine.Persist(ctx, sub, sess.BrokerAccountID, nil)
		if result != nil {
			meta.Merge(result.Metadata)
		}
		if err != nil {
			return meta, err
		}
		if result.Saved() == 0 {
			chunkErr := fmt.Errorf("chunk %d: no records persisted (%d errors)", chunk.ChunkNumber, len(result.Errors))
			if markErr := s.sessions.MarkChunkFailed(sess.ID, chunk.ChunkNumber); markErr != nil {
				return meta, markErr
			}
			if policy.Snapshots == SnapshotFinalOnly {
				// FIFO state spans chunks; continuing after a hole would
				// corrupt downstream matching.
				return meta, chunkErr
			}
			logger.L.Error("Chunk failed, continuing with remaining chunks", "chunk", chunk.ChunkNumber, "error", chunkErr)
			continue
		}
		if len(result.Errors) > 0 {
			logger.L.Warn("Chunk persisted with record errors",
				"chunk", chunk.ChunkNumber, "saved", result.Saved(), "errors", len(result.Errors))
		}

		if policy.Snapshots == SnapshotPerChunk {
			if r := s.tickerSnaps.ProcessImport(result.Metadata, chunk.EndDate, true); !r.Success {
				logger.L.Warn("Per-chunk ticker snapshots reported errors", "chunk", chunk.ChunkNumber, "errors", r.Errors)
			}
			if r := s.financials.ProcessImport(result.Metadata, chunk.EndDate, true); !r.Success {
				logger.L.Warn("Per-chunk financials reported errors", "chunk", chunk.ChunkNumber, "errors", r.Errors)
			}
		}

		took := time.Since(started)
		if err := s.sessions.MarkChunkCompleted(sess.ID, chunk.ChunkNumber, result.Saved(), took.Milliseconds()); err != nil {
			return meta, err
		}
		ct.FinishChunk(chunk.ChunkNumber, result.Saved(), took)

		// Hand chunk memory back before the next chunk is filtered.
		runtime.GC()
	}
	return meta, nil
}

// fail records the terminal state for an aborted run. Cancellation and
// failure leave different phases behind; both keep completed chunks so a
// resume picks up where the run stopped.
func (s *importService) fail(sess *models.ImportSession, err error) error {
	if errors.Is(err, context.Canceled) {
		if sess != nil {
			if cancelErr := s.sessions.Cancel(sess.ID); cancelErr != nil {
				logger.L.Error("Failed to mark session cancelled", "error", cancelErr)
			}
		}
		s.tracker.Set(progress.PhaseCancelled, "import cancelled", 0)
		return err
	}
	if sess != nil {
		if failErr := s.sessions.Fail(sess.ID, err.Error()); failErr != nil {
			logger.L.Error("Failed to mark session failed", "error", failErr)
		}
	}
	s.tracker.Set(progress.PhaseFailed, err.Error(), 0)
	return err
}
