// Package tzif reads and writes compiled zoneinfo files (RFC 8536), as
// found in /etc/localtime.
//
// Only the parts that describe the current rules of a zone are kept: the
// 64-bit transitions, the local time types and the footer TZ string. Leap
// second records and the standard/wall and UT/local indicators are
// skipped on reading and written empty.
package tzif

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// All integers are big-endian.
var order = binary.BigEndian

// Version is the format version octet.
type Version byte

const (
	V1 Version = 0x00
	V2 Version = '2'
	V3 Version = '3'
	V4 Version = '4'
)

func (v Version) String() string {
	switch v {
	case V1:
		return "1"
	case V2, V3, V4:
		return string(rune(v))
	}
	return fmt.Sprintf("<undefined version (%d)>", byte(v))
}

var magic = [4]byte{'T', 'Z', 'i', 'f'}

// header is the fixed 44 octet file header.
type header struct {
	Magic    [4]byte
	Version  Version
	Reserved [15]byte
	Isutcnt  uint32
	Isstdcnt uint32
	Leapcnt  uint32
	Timecnt  uint32
	Typecnt  uint32
	Charcnt  uint32
}

// dataSize returns the length of the data block that follows h, with
// timeSize octets per time value.
func (h header) dataSize(timeSize int64) int64 {
	return int64(h.Timecnt)*timeSize +
		int64(h.Timecnt) +
		int64(h.Typecnt)*6 +
		int64(h.Charcnt) +
		int64(h.Leapcnt)*(timeSize+4) +
		int64(h.Isstdcnt) +
		int64(h.Isutcnt)
}

func readHeader(r io.Reader) (header, error) {
	var h header
	if err := binary.Read(r, order, &h); err != nil {
		return h, fmt.Errorf("reading header: %w", err)
	}
	if h.Magic != magic {
		return h, fmt.Errorf("invalid magic: %q", h.Magic[:])
	}
	if h.Typecnt == 0 {
		return h, errors.New("no local time types")
	}
	return h, nil
}

// LocalTimeType is a local time type record with its designation resolved.
type LocalTimeType struct {
	// UTOffset is the offset in seconds east of UT.
	UTOffset int32
	IsDST    bool
	Abbrev   string
}

// File is the content of a zoneinfo file that matters for rules.
type File struct {
	Version Version
	// Transitions are UNIX times, ascending, and Types the index into
	// LocalTimeTypes that applies from each of them.
	Transitions []int64
	Types       []uint8
	// LocalTimeTypes has at least one element.
	LocalTimeTypes []LocalTimeType
	// TZString is the POSIX TZ string of the footer. It governs the times
	// after the last transition. Version 1 files have none.
	TZString string
}

// Decode reads a zoneinfo file. For version 2 and later files the 32-bit
// data block is skipped.
func Decode(r io.Reader) (File, error) {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return File{}, err
	}
	f := File{Version: h.Version}
	if h.Version == V1 {
		if err := f.readData(br, h, 4); err != nil {
			return File{}, fmt.Errorf("v1 data block: %w", err)
		}
		return f, f.validate()
	}

	if _, err := io.CopyN(io.Discard, br, h.dataSize(4)); err != nil {
		return File{}, fmt.Errorf("skipping v1 data block: %w", err)
	}
	if h, err = readHeader(br); err != nil {
		return File{}, fmt.Errorf("v2 %w", err)
	}
	if err := f.readData(br, h, 8); err != nil {
		return File{}, fmt.Errorf("v2 data block: %w", err)
	}
	if f.TZString, err = readFooter(br); err != nil {
		return File{}, fmt.Errorf("footer: %w", err)
	}
	return f, f.validate()
}

func (f *File) readData(r io.Reader, h header, timeSize int64) error {
	f.Transitions = make([]int64, h.Timecnt)
	if timeSize == 4 {
		times := make([]int32, h.Timecnt)
		if err := binary.Read(r, order, times); err != nil {
			return fmt.Errorf("transition times: %w", err)
		}
		for i, t := range times {
			f.Transitions[i] = int64(t)
		}
	} else if err := binary.Read(r, order, f.Transitions); err != nil {
		return fmt.Errorf("transition times: %w", err)
	}

	f.Types = make([]uint8, h.Timecnt)
	if _, err := io.ReadFull(r, f.Types); err != nil {
		return fmt.Errorf("transition types: %w", err)
	}

	type record struct {
		Utoff int32
		Dst   uint8
		Idx   uint8
	}
	records := make([]record, h.Typecnt)
	if err := binary.Read(r, order, records); err != nil {
		return fmt.Errorf("local time type records: %w", err)
	}
	chars := make([]byte, h.Charcnt)
	if _, err := io.ReadFull(r, chars); err != nil {
		return fmt.Errorf("time zone designations: %w", err)
	}
	f.LocalTimeTypes = make([]LocalTimeType, len(records))
	for i, rec := range records {
		if int(rec.Idx) >= len(chars) {
			return fmt.Errorf("designation index %d out of range", rec.Idx)
		}
		abbrev, _, _ := bytes.Cut(chars[rec.Idx:], []byte{0})
		f.LocalTimeTypes[i] = LocalTimeType{UTOffset: rec.Utoff, IsDST: rec.Dst != 0, Abbrev: string(abbrev)}
	}

	rest := int64(h.Leapcnt)*(timeSize+4) + int64(h.Isstdcnt) + int64(h.Isutcnt)
	if _, err := io.CopyN(io.Discard, r, rest); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	return nil
}

func readFooter(r *bufio.Reader) (string, error) {
	nl, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if nl != '\n' {
		return "", fmt.Errorf("expected newline, got %q", nl)
	}
	s, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("unterminated TZ string: %w", err)
	}
	return s[:len(s)-1], nil
}

func (f File) validate() error {
	var errs []error
	if len(f.LocalTimeTypes) == 0 {
		errs = append(errs, errors.New("no local time types"))
	}
	for i, t := range f.Types {
		if int(t) >= len(f.LocalTimeTypes) {
			errs = append(errs, fmt.Errorf("transition %d: type %d out of range", i, t))
		}
	}
	for i := 1; i < len(f.Transitions); i++ {
		if f.Transitions[i] <= f.Transitions[i-1] {
			errs = append(errs, fmt.Errorf("transition %d: times not ascending", i))
		}
	}
	return errors.Join(errs...)
}

// Current returns the standard and daylight time types of the last two
// transitions. ok is false if neither of them is daylight time. Files
// without transitions yield their first type as standard time.
func (f File) Current() (std, dst LocalTimeType, ok bool) {
	std = f.LocalTimeTypes[0]
	var haveStd bool
	for i := len(f.Types) - 1; i >= 0 && i >= len(f.Types)-2; i-- {
		t := f.LocalTimeTypes[f.Types[i]]
		switch {
		case t.IsDST && !ok:
			dst, ok = t, true
		case !t.IsDST && !haveStd:
			std, haveStd = t, true
		}
	}
	return std, dst, ok
}

// Encode writes f as a version 2 file (or version 1 if f.Version is V1).
// The version 1 data block of a later version file holds the transitions
// that fit in 32 bits.
func (f File) Encode(w io.Writer) error {
	if f.Version == V1 {
		return f.writeBlock(w, V1, 4)
	}
	if err := f.writeBlock(w, f.Version, 4); err != nil {
		return err
	}
	if err := f.writeBlock(w, f.Version, 8); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", f.TZString)
	return err
}

func (f File) writeBlock(w io.Writer, v Version, timeSize int) error {
	var (
		times []int64
		types []uint8
	)
	for i, t := range f.Transitions {
		if timeSize == 4 && (t < -1<<31 || t >= 1<<31) {
			continue
		}
		times = append(times, t)
		types = append(types, f.Types[i])
	}

	var chars []byte
	idx := make([]uint8, len(f.LocalTimeTypes))
	for i, t := range f.LocalTimeTypes {
		at := bytes.Index(chars, append([]byte(t.Abbrev), 0))
		if at < 0 {
			at = len(chars)
			chars = append(append(chars, t.Abbrev...), 0)
		}
		idx[i] = uint8(at)
	}

	h := header{
		Magic:   magic,
		Version: v,
		Timecnt: uint32(len(times)),
		Typecnt: uint32(len(f.LocalTimeTypes)),
		Charcnt: uint32(len(chars)),
	}
	var buf bytes.Buffer
	binary.Write(&buf, order, h)
	for _, t := range times {
		if timeSize == 4 {
			binary.Write(&buf, order, int32(t))
		} else {
			binary.Write(&buf, order, t)
		}
	}
	buf.Write(types)
	for i, t := range f.LocalTimeTypes {
		var dst uint8
		if t.IsDST {
			dst = 1
		}
		binary.Write(&buf, order, t.UTOffset)
		buf.WriteByte(dst)
		buf.WriteByte(idx[i])
	}
	buf.Write(chars)
	_, err := buf.WriteTo(w)
	return err
}
