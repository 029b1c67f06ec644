package logger

import (
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"
)

// dailyFile appends to <dir>/YYYY-MM-DD.log and rolls over at midnight.
type dailyFile struct {
	mu  sync.Mutex
	dir string
	day string
	f   *os.File
	now func() time.Time
}

func newDailyFile(dir string) (*dailyFile, error) {
	// A data directory gets a logs/ subdirectory; a .../logs path is used as-is.
	if path.Base(filepath.ToSlash(dir)) != "logs" {
		dir = filepath.Join(dir, "logs")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	d := &dailyFile{dir: dir, now: time.Now}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.rotateLocked(d.now()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.rotateLocked(d.now()); err != nil {
		return 0, err
	}
	return d.f.Write(p)
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *dailyFile) rotateLocked(t time.Time) error {
	day := t.Format("2006-01-02")
	if d.f != nil && d.day == day {
		return nil
	}
	if d.f != nil {
		_ = d.f.Close()
		d.f = nil
	}
	f, err := os.OpenFile(filepath.Join(d.dir, day+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return err
	}
	d.f = f
	d.day = day
	return nil
}
