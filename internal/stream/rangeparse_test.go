package stream

import (
	"errors"
	"strconv"
	"testing"
)

func TestParseRange(t *testing.T) {
	const total = 1000
	tests := []struct {
		name    string
		header  string
		want    *Range
		wantErr bool
	}{
		{"no header", "", nil, false},
		{"open end", "bytes=100-", &Range{100, 999}, false},
		{"closed", "bytes=0-499", &Range{0, 499}, false},
		{"single byte", "bytes=999-999", &Range{999, 999}, false},
		{"suffix form ignored", "bytes=-500", nil, false},
		{"multi range ignored", "bytes=0-1,5-6", nil, false},
		{"other unit ignored", "items=0-1", nil, false},
		{"start after end", "bytes=500-100", nil, true},
		{"end past total", "bytes=0-1000", nil, true},
		{"start past total", "bytes=1000-", nil, true},
		{"overflow", "bytes=99999999999999999999-", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, total)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsatisfiableRange) {
					t.Fatalf("expected ErrUnsatisfiableRange, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseRange_BoundsProperty(t *testing.T) {
	for total := int64(1); total <= 20; total++ {
		for start := int64(0); start < 25; start++ {
			for end := int64(0); end < 25; end++ {
				h := "bytes=" + strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(end, 10)
				got, err := ParseRange(h, total)
				if start > end || end >= total {
					if !errors.Is(err, ErrUnsatisfiableRange) {
						t.Fatalf("%s total=%d: expected 416, got %+v %v", h, total, got, err)
					}
					continue
				}
				if err != nil || got == nil || got.Length() != end-start+1 {
					t.Fatalf("%s total=%d: got %+v %v", h, total, got, err)
				}
			}
		}
	}
}
