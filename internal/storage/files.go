package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/genc-murat/weatherstation/internal/core/models"
	"github.com/genc-murat/weatherstation/internal/metrics"
)

const (
	FileCurrent    = "DataFile.json"
	FileHour       = "CurrentHourRecords.json"
	FileDay        = "CurrentDayRecords.json"
	FileMonth      = "CurrentMonthRecords.json"
	FilePerfLog    = "WritePerformance.log"
	lockFile       = ".weatherstation.lock"
	lockRetryDelay = 50 * time.Millisecond
	perfTimeLayout = "2006-01-02 15:04:05"
)

// ErrLocked is returned when another process holds the data directory.
var ErrLocked = errors.New("data directory is locked by another process")

// FileStorage keeps one JSON file per view in a directory. Every flush
// rewrites each file whole through a temp file and a rename, so a crash
// leaves either the old or the new contents.
type FileStorage struct {
	dir  string
	lock *flock.Flock
	mu   sync.Mutex

	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*FileStorage)

func WithLogger(log logrus.FieldLogger) Option {
	return func(fs *FileStorage) { fs.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(fs *FileStorage) { fs.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(fs *FileStorage) { fs.now = now }
}

func NewFileStorage(dir string, opts ...Option) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	fs := &FileStorage{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFile)),
		log:  logrus.StandardLogger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.log = fs.log.WithField("component", "storage")
	return fs, nil
}

func (fs *FileStorage) Dir() string { return fs.dir }

// Flush overwrites the four view files with snap and appends one line to
// the performance log. Only one flush runs at a time, within this process
// through a mutex and across processes through a lock file.
func (fs *FileStorage) Flush(ctx context.Context, snap models.Snapshot) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	locked, err := fs.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock data directory: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	defer func() {
		if err := fs.lock.Unlock(); err != nil {
			fs.log.WithError(err).Warn("Failed to release data directory lock")
		}
	}()

	var errs []error
	write := func(view models.View, file string, payload any, count int) (time.Duration, int) {
		start := time.Now()
		err := fs.writeJSON(file, payload)
		elapsed := time.Since(start)
		if err != nil {
			errs = append(errs, fmt.Errorf("write %s view: %w", view, err))
			fs.log.WithError(err).WithField("view", view).Error("Failed to persist view")
			count = 0
		}
		fs.metrics.FlushView(string(view), elapsed, count)
		return elapsed, count
	}

	tCur, _ := write(models.ViewCurrent, FileCurrent, snap.Current, 1)
	tHour, nHour := write(models.ViewHour, FileHour, nonNil(snap.HourBucket), len(snap.HourBucket))
	tDay, nDay := write(models.ViewDay, FileDay, nonNil(snap.HourlyHistory), len(snap.HourlyHistory))
	tMonth, nMonth := write(models.ViewMonth, FileMonth, nonNil(snap.DailyHistory), len(snap.DailyHistory))

	line := fmt.Sprintf("%s - Current: %dms, Hour: %dms (count: %d), Day: %dms (count: %d), Month: %dms (count: %d)\n",
		fs.now().Format(perfTimeLayout),
		tCur.Milliseconds(),
		tHour.Milliseconds(), nHour,
		tDay.Milliseconds(), nDay,
		tMonth.Milliseconds(), nMonth)
	if err := fs.appendPerfLog(line); err != nil {
		errs = append(errs, fmt.Errorf("append performance log: %w", err))
	}

	if len(errs) > 0 {
		fs.metrics.FlushFailed()
		return errors.Join(errs...)
	}
	fs.log.WithFields(logrus.Fields{
		"hour":  nHour,
		"day":   nDay,
		"month": nMonth,
	}).Debug("Flushed snapshot")
	return nil
}

// Load reads whichever view files exist. Missing or unreadable files give
// empty views; list views are deduplicated by timestamp.
func (fs *FileStorage) Load(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	snap := models.Snapshot{
		Current:       fs.loadCurrent(),
		HourBucket:    fs.loadList(models.ViewHour, FileHour),
		HourlyHistory: fs.loadList(models.ViewDay, FileDay),
		DailyHistory:  fs.loadList(models.ViewMonth, FileMonth),
	}

	fs.log.WithFields(logrus.Fields{
		"current": snap.Current != nil,
		"hour":    len(snap.HourBucket),
		"day":     len(snap.HourlyHistory),
		"month":   len(snap.DailyHistory),
	}).Info("Loaded persisted state")
	return snap, nil
}

func (fs *FileStorage) Close() error {
	return fs.lock.Close()
}

func (fs *FileStorage) loadCurrent() *models.Sample {
	data := fs.readRecord(models.ViewCurrent, FileCurrent)
	if data == nil {
		return nil
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return nil
	}

	var s models.Sample
	if err := s.UnmarshalJSON(data); err != nil {
		fs.log.WithError(err).WithField("view", models.ViewCurrent).Warn("Ignoring corrupt record")
		return nil
	}
	return &s
}

func (fs *FileStorage) loadList(view models.View, file string) []models.Sample {
	data := fs.readRecord(view, file)
	if data == nil {
		return nil
	}

	samples, err := decodeList(data)
	if err != nil {
		fs.log.WithError(err).WithField("view", view).Warn("Ignoring corrupt record")
		return nil
	}

	deduped := models.Dedupe(samples)
	if dropped := len(samples) - len(deduped); dropped > 0 {
		fs.log.WithFields(logrus.Fields{"view": view, "dropped": dropped}).Info("Dropped duplicate samples")
	}
	return deduped
}

// readRecord returns nil for a missing, unreadable or invalid file.
func (fs *FileStorage) readRecord(view models.View, file string) []byte {
	data, err := os.ReadFile(filepath.Join(fs.dir, file))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fs.log.WithError(err).WithField("view", view).Warn("Failed to read record")
		}
		return nil
	}
	if !gjson.ValidBytes(data) {
		fs.log.WithField("view", view).Warn("Ignoring record that is not valid JSON")
		return nil
	}
	return data
}

// decodeList parses a JSON array of samples. Elements that are not valid
// samples are skipped.
func decodeList(data []byte) ([]models.Sample, error) {
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return nil, nil
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("expected array, got %s", res.Type)
	}

	var (
		samples []models.Sample
		skipped int
	)
	res.ForEach(func(_, value gjson.Result) bool {
		var s models.Sample
		if err := s.UnmarshalJSON([]byte(value.Raw)); err != nil {
			skipped++
			return true
		}
		samples = append(samples, s)
		return true
	})
	if skipped > 0 && len(samples) == 0 {
		return nil, fmt.Errorf("none of %d elements is a valid sample", skipped)
	}
	return samples, nil
}

func (fs *FileStorage) writeJSON(file string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(fs.dir, file), data)
}

func (fs *FileStorage) appendPerfLog(line string) error {
	f, err := os.OpenFile(filepath.Join(fs.dir, FilePerfLog), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func nonNil(samples []models.Sample) []models.Sample {
	if samples == nil {
		return []models.Sample{}
	}
	return samples
}
