package stream

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var ErrUnsatisfiableRange = errors.New("range not satisfiable")

var rangeRe = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// Range: включительный диапазон байт.
type Range struct {
	Start, End int64
}

func (r Range) Length() int64 { return r.End - r.Start + 1 }

// ParseRange разбирает заголовок Range для объекта размером total.
// (nil, nil): заголовка нет или он не похож на одиночный bytes-диапазон, отдаём всё тело.
// ErrUnsatisfiableRange: форма верная, но числа не разбираются или вне границ.
func ParseRange(header string, total int64) (*Range, error) {
	m := rangeRe.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return nil, nil
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, ErrUnsatisfiableRange
	}
	end := total - 1
	if m[2] != "" {
		if end, err = strconv.ParseInt(m[2], 10, 64); err != nil {
			return nil, ErrUnsatisfiableRange
		}
	}
	if start > end || end >= total {
		return nil, ErrUnsatisfiableRange
	}
	return &Range{Start: start, End: end}, nil
}
