package bag

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
)

// magicHeader identifies a bag file; version byte follows it.
var magicHeader = [8]byte{'M', 'X', 'R', 'C', 'B', 'A', 'G', 1}

const footerSize = 8 + 8 + 4 + 8 // index_offset, index_count, crc32, data_size

type indexEntry struct {
	TimestampNS int64
	ByteOffset  int64
}

// RotationPolicy bounds how large or how old an open bag file may grow
// before the writer closes it and opens a new one.
type RotationPolicy struct {
	MaxSizeBytes int64
	MaxAge       time.Duration
}

// DefaultRotationPolicy matches the size/time example in §4.11 (1 GB, no
// time bound).
func DefaultRotationPolicy() RotationPolicy {
	return RotationPolicy{MaxSizeBytes: 1 << 30}
}

type openFile struct {
	f         *os.File
	path      string
	dataStart int64
	offset    int64
	crc       uint32
	index     []indexEntry
	openedAt  time.Time
}

// Writer appends Records to a rotating sequence of bag files on a
// background I/O goroutine fed by a bounded channel standing in for the
// SPSC append queue (§4.11). A full queue drops the record and increments
// DroppedCount rather than blocking the caller.
type Writer struct {
	dir      string
	rotation RotationPolicy
	logger   *mxlog.Logger

	appendCh chan Record
	doneCh   chan struct{}
	closed   atomic.Bool

	droppedCount atomic.Uint64
	writtenCount atomic.Uint64

	mu          sync.Mutex
	current     *openFile
	closedFiles []string
}

func NewWriter(dir string, rotation RotationPolicy, queueCapacity int, logger *mxlog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bag: create dir: %w", err)
	}
	w := &Writer{
		dir:      dir,
		rotation: rotation,
		logger:   logger,
		appendCh: make(chan Record, queueCapacity),
		doneCh:   make(chan struct{}),
	}
	if err := w.openNewFile(); err != nil {
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *Writer) openNewFile() error {
	name := fmt.Sprintf("bag-%s.mxbag", time.Now().Format("20060102T150405.000000000"))
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bag: open %s: %w", path, err)
	}
	if _, err := f.Write(magicHeader[:]); err != nil {
		f.Close()
		return fmt.Errorf("bag: write header: %w", err)
	}
	w.current = &openFile{
		f:         f,
		path:      path,
		dataStart: int64(len(magicHeader)),
		openedAt:  time.Now(),
	}
	return nil
}

// Append enqueues rec for writing. Returns false if the append queue is
// full; the record is dropped and DroppedCount is incremented.
func (w *Writer) Append(rec Record) bool {
	if w.closed.Load() {
		return false
	}
	select {
	case w.appendCh <- rec:
		return true
	default:
		w.droppedCount.Add(1)
		if w.logger != nil {
			w.logger.WithComponent("bag_writer").Warn("append queue full, record dropped")
		}
		return false
	}
}

func (w *Writer) run() {
	defer close(w.doneCh)
	for rec := range w.appendCh {
		w.writeRecord(rec)
		w.maybeRotate()
	}
	w.finalizeCurrent()
}

func (w *Writer) writeRecord(rec Record) {
	line, err := rec.marshal()
	if err != nil {
		if w.logger != nil {
			w.logger.WithComponent("bag_writer").WithError(err).Warn("dropping unmarshalable record")
		}
		return
	}
	line = append(line, '\n')

	cur := w.current
	if _, err := cur.f.Write(line); err != nil {
		if w.logger != nil {
			w.logger.WithComponent("bag_writer").WithError(err).Error("write failed")
		}
		return
	}
	cur.index = append(cur.index, indexEntry{TimestampNS: rec.TimestampNS, ByteOffset: cur.dataStart + cur.offset})
	cur.crc = crc32.Update(cur.crc, crc32.IEEETable, line)
	cur.offset += int64(len(line))
	w.writtenCount.Add(1)
}

func (w *Writer) maybeRotate() {
	cur := w.current
	needRotate := false
	if w.rotation.MaxSizeBytes > 0 && cur.offset >= w.rotation.MaxSizeBytes {
		needRotate = true
	}
	if w.rotation.MaxAge > 0 && time.Since(cur.openedAt) >= w.rotation.MaxAge {
		needRotate = true
	}
	if !needRotate {
		return
	}
	w.finalizeCurrent()
	if err := w.openNewFile(); err != nil && w.logger != nil {
		w.logger.WithComponent("bag_writer").WithError(err).Error("rotation failed to open new file")
	}
}

func (w *Writer) finalizeCurrent() {
	cur := w.current
	if cur == nil {
		return
	}

	sort.Slice(cur.index, func(i, j int) bool { return cur.index[i].TimestampNS < cur.index[j].TimestampNS })

	indexOffset := cur.dataStart + cur.offset
	for _, e := range cur.index {
		var buf [16]byte
		binary.BigEndian.PutUint64(buf[0:8], uint64(e.TimestampNS))
		binary.BigEndian.PutUint64(buf[8:16], uint64(e.ByteOffset))
		cur.f.Write(buf[:])
	}

	var footer [footerSize]byte
	binary.BigEndian.PutUint64(footer[0:8], uint64(indexOffset))
	binary.BigEndian.PutUint64(footer[8:16], uint64(len(cur.index)))
	binary.BigEndian.PutUint32(footer[16:20], cur.crc)
	binary.BigEndian.PutUint64(footer[20:28], uint64(cur.offset))
	cur.f.Write(footer[:])

	cur.f.Close()

	w.mu.Lock()
	w.closedFiles = append(w.closedFiles, cur.path)
	w.mu.Unlock()
}

// Close stops accepting new records, drains the append queue, finalizes
// the current file's index and footer, and joins the writer goroutine.
func (w *Writer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.appendCh)
	<-w.doneCh
	return nil
}

func (w *Writer) DroppedCount() uint64 { return w.droppedCount.Load() }
func (w *Writer) WrittenCount() uint64 { return w.writtenCount.Load() }

// ClosedFiles returns the paths of every bag file this writer has finalized
// (via rotation or Close), in creation order.
func (w *Writer) ClosedFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.closedFiles))
	copy(out, w.closedFiles)
	return out
}
