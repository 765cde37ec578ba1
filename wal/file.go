package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/ewma"
	atomicfile "github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/logcache/internal/singleflight"
	"github.com/IvanBrykalov/logcache/op"
)

const (
	segmentSuffix   = ".wal"
	manifestName    = "manifest.json"
	defaultSegment  = 64 << 20
	defaultQueue    = 1024
	defaultReadCap  = 8 << 20
	writerBatchSize = 64
)

// Options configures a file-backed WAL.
type Options struct {
	// SegmentBytes rotates the active segment once it grows past this
	// size. Default 64 MiB.
	SegmentBytes int64

	// QueueDepth is the append queue length; a full queue blocks
	// AppendAsync (backpressure). Default 1024.
	QueueDepth int

	// MaxReadBytes bounds the payload returned by one ReadAsync.
	// At least one op is always returned when any is available.
	// Default 8 MiB.
	MaxReadBytes int64

	// Logger receives warnings (corrupt tails, manifest mismatches).
	// Default logrus standard logger.
	Logger logrus.FieldLogger
}

type appendReq struct {
	o    *op.Op
	done AppendDone
}

type segmentInfo struct {
	first uint64
	path  string
}

type manifest struct {
	LastIndex uint64 `json:"last_index"`
}

// WAL is a file-backed segmented Log. A single writer goroutine batches
// queued appends, writes them to the active segment, and fsyncs once per
// batch before firing completions, so a completed append is durable.
type WAL struct {
	dir string
	opt Options
	log logrus.FieldLogger

	mu       sync.RWMutex // guards closed and segments
	closed   bool
	segments []segmentInfo

	appendCh chan appendReq
	writerWG sync.WaitGroup
	readWG   sync.WaitGroup

	lastDurable   atomic.Uint64
	appendedOps   atomic.Uint64
	appendedBytes atomic.Uint64

	statsMu sync.Mutex
	syncMA  ewma.MovingAverage
	syncs   uint64

	sf singleflight.Group[uint64, []*op.Op]

	// Writer-goroutine state; touched by Close only after the writer
	// has exited.
	active      *os.File
	activeBytes int64
	nextIndex   uint64
}

var _ Log = (*WAL)(nil)

// Open opens (or creates) a WAL in dir and recovers its tail position by
// scanning the newest segment.
func Open(dir string, opt Options) (*WAL, error) {
	if opt.SegmentBytes <= 0 {
		opt.SegmentBytes = defaultSegment
	}
	if opt.QueueDepth <= 0 {
		opt.QueueDepth = defaultQueue
	}
	if opt.MaxReadBytes <= 0 {
		opt.MaxReadBytes = defaultReadCap
	}
	if opt.Logger == nil {
		opt.Logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir: %w", err)
	}

	w := &WAL{
		dir:      dir,
		opt:      opt,
		log:      opt.Logger.WithField("wal_dir", dir),
		appendCh: make(chan appendReq, opt.QueueDepth),
		syncMA:   ewma.NewMovingAverage(),
	}
	if err := w.recover(); err != nil {
		return nil, err
	}

	w.writerWG.Add(1)
	go w.runWriter()
	return w, nil
}

func (w *WAL) recover() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("wal: read dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		first, perr := strconv.ParseUint(strings.TrimSuffix(name, segmentSuffix), 10, 64)
		if perr != nil {
			w.log.WithField("file", name).Warn("ignoring unparseable segment name")
			continue
		}
		w.segments = append(w.segments, segmentInfo{first: first, path: filepath.Join(w.dir, name)})
	}
	sort.Slice(w.segments, func(i, j int) bool { return w.segments[i].first < w.segments[j].first })

	if len(w.segments) == 0 {
		return nil
	}

	// Scan the newest segment to find the durable tail.
	tail := w.segments[len(w.segments)-1]
	last, size, err := scanSegmentTail(tail.path)
	if err != nil {
		return err
	}
	if last == 0 {
		last = tail.first - 1
	}
	w.nextIndex = last + 1
	w.lastDurable.Store(last)

	// Cut off anything past the last clean record boundary so new appends
	// stay reachable by scans.
	if st, serr := os.Stat(tail.path); serr == nil && st.Size() > size {
		w.log.WithFields(logrus.Fields{"segment": tail.path, "cut_bytes": st.Size() - size}).
			Warn("truncating corrupt segment tail")
		if terr := os.Truncate(tail.path, size); terr != nil {
			return fmt.Errorf("wal: truncate corrupt tail: %w", terr)
		}
	}

	f, err := os.OpenFile(tail.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("wal: reopen segment: %w", err)
	}
	w.active = f
	w.activeBytes = size

	if m, ok := w.loadManifest(); ok && m.LastIndex != last {
		w.log.WithFields(logrus.Fields{"manifest": m.LastIndex, "scanned": last}).
			Warn("manifest disagrees with segment scan; trusting the scan")
	}
	return nil
}

// scanSegmentTail decodes a segment, returning the highest index found and
// the byte offset of the last clean record boundary. A corrupt tail is
// normal after a crash mid-write and is simply cut off.
func scanSegmentTail(path string) (last uint64, clean int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("wal: open segment: %w", err)
	}
	defer f.Close()

	cr := &countingReader{r: bufio.NewReader(f)}
	for {
		o, derr := decodeRecord(cr)
		if derr == io.EOF {
			return last, clean, nil
		}
		if derr != nil {
			if errors.Is(derr, ErrCorrupt) {
				return last, clean, nil
			}
			return 0, 0, derr
		}
		last = o.Index
		clean = cr.n
	}
}

type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// AppendAsync implements Log. A full queue blocks the caller.
func (w *WAL) AppendAsync(o *op.Op, done AppendDone) {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		go done(ErrClosed)
		return
	}
	// Holding the read lock while sending keeps Close from closing the
	// channel under us; the writer keeps draining until then.
	w.appendCh <- appendReq{o: o, done: done}
	w.mu.RUnlock()
}

func (w *WAL) runWriter() {
	defer w.writerWG.Done()
	for {
		req, ok := <-w.appendCh
		if !ok {
			return
		}
		batch := make([]appendReq, 1, writerBatchSize)
		batch[0] = req
	drain:
		for len(batch) < writerBatchSize {
			select {
			case r, ok2 := <-w.appendCh:
				if !ok2 {
					w.processBatch(batch)
					return
				}
				batch = append(batch, r)
			default:
				break drain
			}
		}
		w.processBatch(batch)
	}
}

func (w *WAL) processBatch(batch []appendReq) {
	written := make([]appendReq, 0, len(batch))
	var failed []appendReq
	var failErr error

	for i, req := range batch {
		if failErr != nil {
			failed = batch[i:]
			break
		}
		if w.nextIndex != 0 && req.o.Index != w.nextIndex {
			req.done(ErrOutOfOrder)
			continue
		}
		if err := w.writeOne(req.o); err != nil {
			// The file position is now uncertain; fail the rest of
			// the batch rather than risk interleaving garbage.
			failErr = err
			failed = batch[i:]
			break
		}
		w.nextIndex = req.o.Index + 1
		written = append(written, req)
	}

	var syncErr error
	if len(written) > 0 {
		start := time.Now()
		syncErr = w.active.Sync()
		w.observeSync(time.Since(start))
	}
	for _, req := range written {
		if syncErr != nil {
			req.done(fmt.Errorf("wal: fsync: %w", syncErr))
			continue
		}
		w.lastDurable.Store(req.o.Index)
		w.appendedOps.Add(1)
		w.appendedBytes.Add(uint64(req.o.ByteSize()))
		req.done(nil)
	}
	for _, req := range failed {
		req.done(fmt.Errorf("wal: append: %w", failErr))
	}
	if failErr != nil {
		w.log.WithError(failErr).Error("segment write failed")
	}
}

func (w *WAL) writeOne(o *op.Op) error {
	if w.active == nil || w.activeBytes >= w.opt.SegmentBytes {
		if err := w.rotate(o.Index); err != nil {
			return err
		}
	}
	rec, err := encodeRecord(o)
	if err != nil {
		return err
	}
	if _, err := w.active.Write(rec); err != nil {
		return err
	}
	w.activeBytes += int64(len(rec))
	return nil
}

func (w *WAL) rotate(firstIndex uint64) error {
	if w.active != nil {
		if err := w.active.Sync(); err != nil {
			return err
		}
		if err := w.active.Close(); err != nil {
			return err
		}
		w.active = nil
		w.writeManifest()
	}
	path := filepath.Join(w.dir, segmentName(firstIndex))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.active = f
	w.activeBytes = 0

	w.mu.Lock()
	w.segments = append(w.segments, segmentInfo{first: firstIndex, path: path})
	w.mu.Unlock()
	return nil
}

func segmentName(first uint64) string {
	return fmt.Sprintf("%020d%s", first, segmentSuffix)
}

// writeManifest persists the durable tail via atomic replace so a partial
// write can never produce a mangled manifest.
func (w *WAL) writeManifest() {
	m := manifest{LastIndex: w.lastDurable.Load()}
	buf, err := json.Marshal(m)
	if err != nil {
		w.log.WithError(err).Warn("manifest encode failed")
		return
	}
	path := filepath.Join(w.dir, manifestName)
	if err := atomicfile.WriteFile(path, bytes.NewReader(buf)); err != nil {
		w.log.WithError(err).Warn("manifest write failed")
	}
}

func (w *WAL) loadManifest() (manifest, bool) {
	buf, err := os.ReadFile(filepath.Join(w.dir, manifestName))
	if err != nil {
		return manifest{}, false
	}
	var m manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		w.log.WithError(err).Warn("manifest decode failed")
		return manifest{}, false
	}
	return m, true
}

// ReadAsync implements Log. Concurrent reads from the same position are
// coalesced into one segment scan; callers therefore must not mutate the
// delivered slice or the ops it holds.
func (w *WAL) ReadAsync(afterIndex uint64, done ReadDone) {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		go done(nil, ErrClosed)
		return
	}
	// Register under the lock so Close cannot start waiting before this
	// read is accounted for.
	w.readWG.Add(1)
	w.mu.RUnlock()

	go func() {
		defer w.readWG.Done()
		ops, err := w.sf.Do(afterIndex, func() ([]*op.Op, error) {
			return w.scan(afterIndex)
		})
		done(ops, err)
	}()
}

func (w *WAL) scan(afterIndex uint64) ([]*op.Op, error) {
	w.mu.RLock()
	segs := append([]segmentInfo(nil), w.segments...)
	w.mu.RUnlock()
	durable := w.lastDurable.Load()

	var (
		out   []*op.Op
		total int64
	)
	for i, seg := range segs {
		// Skip segments that end at or before the requested position.
		if i+1 < len(segs) && segs[i+1].first <= afterIndex+1 {
			continue
		}
		stop, err := w.scanSegment(seg, afterIndex, durable, &out, &total)
		if err != nil {
			return nil, err
		}
		if stop {
			break
		}
	}
	return out, nil
}

func (w *WAL) scanSegment(seg segmentInfo, afterIndex, durable uint64, out *[]*op.Op, total *int64) (stop bool, err error) {
	f, err := os.Open(seg.path)
	if err != nil {
		return false, fmt.Errorf("wal: open segment: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		o, derr := decodeRecord(r)
		if derr == io.EOF {
			return false, nil
		}
		if errors.Is(derr, ErrCorrupt) {
			// Unsynced tail of the active segment.
			w.log.WithField("segment", seg.path).Debug("stopping scan at corrupt tail")
			return true, nil
		}
		if derr != nil {
			return false, derr
		}
		if o.Index > durable {
			return true, nil
		}
		if o.Index <= afterIndex {
			continue
		}
		if *total >= w.opt.MaxReadBytes && len(*out) > 0 {
			return true, nil
		}
		*out = append(*out, o)
		*total += o.ByteSize()
	}
}

// Stats is a point-in-time snapshot of WAL activity.
type Stats struct {
	LastDurableIndex uint64
	Segments         int
	AppendedOps      uint64
	AppendedBytes    uint64
	Syncs            uint64
	SyncMeanMillis   float64
}

// Stats returns current counters. The fsync latency is an exponentially
// weighted moving average over recent batches.
func (w *WAL) Stats() Stats {
	w.mu.RLock()
	segs := len(w.segments)
	w.mu.RUnlock()

	w.statsMu.Lock()
	syncs := w.syncs
	mean := w.syncMA.Value()
	w.statsMu.Unlock()

	return Stats{
		LastDurableIndex: w.lastDurable.Load(),
		Segments:         segs,
		AppendedOps:      w.appendedOps.Load(),
		AppendedBytes:    w.appendedBytes.Load(),
		Syncs:            syncs,
		SyncMeanMillis:   mean,
	}
}

func (w *WAL) observeSync(d time.Duration) {
	w.statsMu.Lock()
	w.syncMA.Add(float64(d) / float64(time.Millisecond))
	w.syncs++
	w.statsMu.Unlock()
}

// Close drains the append queue, fsyncs, and stops the WAL. Queued appends
// complete with their real result; reads in flight finish before return.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.appendCh)
	w.writerWG.Wait()
	w.readWG.Wait()

	var err error
	if w.active != nil {
		if serr := w.active.Sync(); serr != nil {
			err = serr
		}
		if cerr := w.active.Close(); cerr != nil && err == nil {
			err = cerr
		}
		w.active = nil
	}
	w.writeManifest()
	return err
}
