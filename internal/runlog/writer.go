package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// DefaultCheckpointEvery is how many rows accumulate between checkpoint
// writes. Checkpoints bound data loss on long runs.
const DefaultCheckpointEvery = 50

var runFileRe = regexp.MustCompile(`^([a-z]+)(\d+)_\d{4}$`)

// BuildPath returns the next free run-log path under dir, following the
// <type>/<yyyymmdd>/<type>N_HHMM.xlsx convention. The date directory is
// created if needed.
func BuildPath(dir, logType string, now time.Time) (string, error) {
	switch logType {
	case "run", "update", "validasi":
	default:
		logType = "run"
	}
	dateDir := filepath.Join(dir, logType, now.Format("20060102"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", eris.Wrap(err, "runlog: create log dir")
	}

	maxRun := 0
	entries, err := os.ReadDir(dateDir)
	if err != nil {
		return "", eris.Wrap(err, "runlog: scan log dir")
	}
	for _, e := range entries {
		stem := e.Name()
		if filepath.Ext(stem) != ".xlsx" {
			continue
		}
		stem = stem[:len(stem)-len(".xlsx")]
		m := runFileRe.FindStringSubmatch(stem)
		if m == nil || m[1] != logType {
			continue
		}
		if n, err := strconv.Atoi(m[2]); err == nil && n > maxRun {
			maxRun = n
		}
	}

	name := fmt.Sprintf("%s%d_%s.xlsx", logType, maxRun+1, now.Format("1504"))
	return filepath.Join(dateDir, name), nil
}

// Logger collects rows in record order and persists them to one xlsx
// file. Append and flush are safe for concurrent use; rows keep their
// append order.
type Logger struct {
	mu              sync.Mutex
	path            string
	rows            []Row
	sinceCheckpoint int
	checkpointEvery int
}

// NewLogger creates a Logger writing to path. checkpointEvery <= 0
// disables intermediate checkpoints.
func NewLogger(path string, checkpointEvery int) *Logger {
	return &Logger{path: path, checkpointEvery: checkpointEvery}
}

// Path returns the output file path.
func (l *Logger) Path() string { return l.path }

// Len returns the number of rows appended so far.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// Rows returns a copy of the accumulated rows.
func (l *Logger) Rows() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

// Append adds one finished row and checkpoints the file when due.
func (l *Logger) Append(row Row) {
	l.mu.Lock()
	l.rows = append(l.rows, row)
	l.sinceCheckpoint++
	due := l.checkpointEvery > 0 && l.sinceCheckpoint >= l.checkpointEvery
	if due {
		l.sinceCheckpoint = 0
	}
	l.mu.Unlock()

	if due {
		if err := l.Flush(); err != nil {
			zap.L().Warn("runlog: checkpoint write failed", zap.Error(err))
		}
	}
}

// Flush writes every accumulated row to the xlsx file, replacing any
// previous contents. Safe to call multiple times; the final Flush on any
// exit path is what guarantees no attempted record is lost.
func (l *Logger) Flush() error {
	l.mu.Lock()
	rows := make([]Row, len(l.rows))
	copy(rows, l.rows)
	l.mu.Unlock()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("run")
	if err != nil {
		return eris.Wrap(err, "runlog: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().SetString(col)
	}
	for _, row := range rows {
		xr := sheet.AddRow()
		for _, v := range row.Values() {
			xr.AddCell().SetString(v)
		}
	}

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "runlog: create output dir")
		}
	}
	if err := f.Save(l.path); err != nil {
		return eris.Wrap(err, "runlog: save")
	}
	return nil
}

// ReadRows loads a previously written run log back into memory, skipping
// the header row. Used by the recap command.
func ReadRows(path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("runlog: file has no sheets")
	}

	var rows []Row
	for i, xr := range f.Sheets[0].Rows {
		if i == 0 {
			continue
		}
		cells := make([]string, len(Columns))
		for j := range cells {
			if j < len(xr.Cells) {
				cells[j] = xr.Cells[j].String()
			}
		}
		no, _ := strconv.Atoi(cells[0])
		rows = append(rows, Row{
			No:              no,
			ID:              cells[1],
			Name:            cells[2],
			Address:         cells[3],
			Result:          cells[4],
			Latitude:        cells[5],
			LatitudeSource:  cells[6],
			LatitudeBefore:  cells[7],
			LatitudeAfter:   cells[8],
			Longitude:       cells[9],
			LongitudeSource: cells[10],
			LongitudeBefore: cells[11],
			LongitudeAfter:  cells[12],
			ResultBefore:    cells[13],
			ResultAfter:     cells[14],
			NameBefore:      cells[15],
			NameAfter:       cells[16],
			AddressBefore:   cells[17],
			AddressAfter:    cells[18],
			Status:          cells[19],
			Note:            cells[20],
		})
	}
	return rows, nil
}
