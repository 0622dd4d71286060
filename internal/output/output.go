package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hejijunhao/hierclass/internal/model"
)

// Writer is a destination for inference partitions. The pipeline calls Write
// only after a batch has been fully classified.
type Writer interface {
	Write(ctx context.Context, p model.Partition) error
	Close() error
}

// Discarder is implemented by writers that can remove what they wrote for a
// partition. multi.Multi uses it to undo earlier writers when a later one fails.
type Discarder interface {
	Discard(p model.Partition) error
}

// Side names one half of a partition.
type Side string

const (
	Classified   Side = "classified"
	Unclassified Side = "unclassified"
)

// TimestampLayout is used in generated file names. Nanoseconds keep runs in
// the same second apart.
const TimestampLayout = "20060102T150405.000000000Z"

// FileName returns "<side>_<timestamp>.<ext>" for a partition generated at ts.
func FileName(side Side, ts time.Time, ext string) string {
	return fmt.Sprintf("%s_%s.%s", side, ts.UTC().Format(TimestampLayout), ext)
}

// Halves returns both sides of p in a fixed order.
func Halves(p model.Partition) []Half {
	return []Half{
		{Side: Classified, Records: p.Classified},
		{Side: Unclassified, Records: p.Unclassified},
	}
}

// Half is one side of a partition with its records.
type Half struct {
	Side    Side
	Records []model.PredictionRecord
}

// Publish moves the finished file tmp to path. It never replaces an existing
// file: a hard link fails when path exists, and only then is tmp removed.
func Publish(tmp, path string) error {
	if err := os.Link(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", path, err)
	}
	return os.Remove(tmp)
}

// Paths returns the file paths of both halves of p under dir, in Halves order.
func Paths(dir string, p model.Partition, ext string) []string {
	halves := Halves(p)
	out := make([]string, len(halves))
	for i, h := range halves {
		out[i] = filepath.Join(dir, FileName(h.Side, p.GeneratedAt, ext))
	}
	return out
}
