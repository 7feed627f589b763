package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
)

// Marshal returns the text form of ev.
func Marshal(ev *event.Event) ([]byte, error) {
	return AppendBounded(nil, ev, -1)
}

// AppendBounded appends the text form of ev to dst. If limit is
// non-negative and the appended form would need more than limit bytes, dst
// is returned unchanged with errs.ErrOverflow.
func AppendBounded(dst []byte, ev *event.Event, limit int) ([]byte, error) {
	if ev == nil {
		return dst, fmt.Errorf("encode event: %w", errs.ErrNullInput)
	}
	if ev.Name == "" || strings.ContainsAny(ev.Name, reserved) {
		return dst, fmt.Errorf("encode event %d: name %q: %w", ev.ID, ev.Name, errs.ErrInvalidParam)
	}

	line := fmt.Sprintf("%s%s:%d,%s:%s,%s:%d,%s:%d%s",
		prefix,
		fieldID, ev.ID,
		fieldName, ev.Name,
		fieldPriority, int(ev.Priority),
		fieldTimestamp, ev.CreatedAt.Unix(),
		suffix,
	)
	if limit >= 0 && len(line) > limit {
		return dst, fmt.Errorf("encode event %d: needs %d bytes, have %d: %w", ev.ID, len(line), limit, errs.ErrOverflow)
	}
	return append(dst, line...), nil
}

// Encode writes each event's text form followed by a newline.
func Encode(w io.Writer, evs ...*event.Event) error {
	bw := bufio.NewWriter(w)
	var buf []byte
	for _, ev := range evs {
		var err error
		buf, err = AppendBounded(buf[:0], ev, -1)
		if err != nil {
			return err
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write event %d: %w", ev.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush events: %w", err)
	}
	return nil
}

// Unmarshal parses one text-form line. The decoded event keeps the encoded
// id and timestamp.
func Unmarshal(line []byte) (*event.Event, error) {
	s := strings.TrimSpace(string(line))
	body, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return nil, malformed(s, "missing %q", prefix)
	}
	body, ok = strings.CutSuffix(body, suffix)
	if !ok {
		return nil, malformed(s, "missing %q", suffix)
	}

	rest, idText, err := field(body, fieldID)
	if err != nil {
		return nil, malformed(s, "%v", err)
	}
	rest, name, err := field(rest, fieldName)
	if err != nil {
		return nil, malformed(s, "%v", err)
	}
	rest, prioText, err := field(rest, fieldPriority)
	if err != nil {
		return nil, malformed(s, "%v", err)
	}
	rest, tsText, err := field(rest, fieldTimestamp)
	if err != nil {
		return nil, malformed(s, "%v", err)
	}
	if rest != "" {
		return nil, malformed(s, "trailing %q", rest)
	}

	id, err := strconv.ParseUint(idText, 10, 32)
	if err != nil {
		return nil, malformed(s, "id: %v", err)
	}
	if name == "" {
		return nil, malformed(s, "empty name")
	}
	if strings.ContainsAny(name, reserved) {
		return nil, malformed(s, "name %q contains a reserved character", name)
	}
	prio, err := strconv.Atoi(prioText)
	if err != nil {
		return nil, malformed(s, "priority: %v", err)
	}
	priority := event.Priority(prio)
	if !priority.Valid() {
		return nil, malformed(s, "priority %d out of range", prio)
	}
	ts, err := strconv.ParseInt(tsText, 10, 64)
	if err != nil {
		return nil, malformed(s, "timestamp: %v", err)
	}

	return event.New(uint32(id), name, priority, time.Unix(ts, 0).UTC()), nil
}

// DecodeAll reads one event per line from r. Blank lines and lines starting
// with '#' are skipped. Decoding stops at the first malformed line; the
// error names its line number.
func DecodeAll(r io.Reader) ([]*event.Event, error) {
	var out []*event.Event
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ev, err := Unmarshal([]byte(line))
		if err != nil {
			return out, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read events: %w", err)
	}
	return out, nil
}

// field consumes "key:value" up to the next comma (or the end for the last
// field) and returns what follows the comma.
func field(s, key string) (rest, value string, err error) {
	v, ok := strings.CutPrefix(s, key+":")
	if !ok {
		return "", "", fmt.Errorf("expected field %q", key)
	}
	value, rest, _ = strings.Cut(v, ",")
	return rest, value, nil
}

func malformed(line, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s: %w", ErrMalformed, fmt.Sprintf(format, args...), line, errs.ErrInvalidParam)
}
