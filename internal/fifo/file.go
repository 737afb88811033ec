package fifo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// SaveToFile writes every entry with a timestamp in [from, to), in
// order, to path. Each record is {i64 ns-since-Unix-epoch, u64
// payload length, payload bytes} per spec §4.5/§6. The file is
// truncated and replaced; a partial write on error leaves no file
// behind, since the temp-then-rename pattern is used.
func (f *FIFO) SaveToFile(path string, from, to time.Time) error {
	data := f.GetData(from, to)

	f.mu.Lock()
	var stamps []time.Time
	for _, d := range f.entries {
		if !d.Timestamp.Before(from) && d.Timestamp.Before(to) {
			stamps = append(stamps, d.Timestamp)
		}
	}
	f.mu.Unlock()

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("fifo: create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(file)
	for i, payload := range data {
		if err := writeRecord(w, stamps[i], payload); err != nil {
			file.Close()
			os.Remove(tmp)
			return fmt.Errorf("fifo: write record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("fifo: flush %s: %w", tmp, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fifo: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("fifo: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

func writeRecord(w io.Writer, ts time.Time, payload []byte) error {
	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(ts.UnixNano()))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// LoadFromFile reads records in the SaveToFile format from path and
// merges them into the FIFO, re-sorting the combined entry set by
// timestamp since the file may be the concatenation of several
// SaveToFile calls (spec §4.5).
func (f *FIFO) LoadFromFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("fifo: open %s: %w", path, err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var loaded []Datum
	for {
		var hdr [16]byte
		_, err := io.ReadFull(r, hdr[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("fifo: read record header: %w", err)
		}
		ns := int64(binary.LittleEndian.Uint64(hdr[0:8]))
		length := binary.LittleEndian.Uint64(hdr[8:16])

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("fifo: read record payload (%d bytes): %w", length, err)
		}

		loaded = append(loaded, Datum{Timestamp: time.Unix(0, ns), Payload: payload})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, loaded...)
	sort.SliceStable(f.entries, func(i, j int) bool {
		return f.entries[i].Timestamp.Before(f.entries[j].Timestamp)
	})
	return nil
}
