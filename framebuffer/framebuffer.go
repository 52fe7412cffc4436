// Package framebuffer holds per-pixel sample sums for a render in progress.
package framebuffer

import (
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"lumen/vmath/vec3"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// dataLayoutVersion is bumped whenever the on-disk layout changes.
const dataLayoutVersion = 1

// Limits on what ReadFramebuffer will allocate for a checkpoint.
const (
	maxHeaderLength = 1 << 20
	maxDimension    = 1 << 16
	maxPixels       = 1 << 26
)

// Framebuffer accumulates color sums and sample counts for a ColSize×RowSize
// image.  Row 0 is the bottom scanline.
//
// Concurrent writers are safe as long as they touch disjoint pixels.
type Framebuffer struct {
	ColSize, RowSize int
	ColorSums        []float64
	SampleCounts     []uint32
}

type Sample struct {
	Sum   vec3.T
	Count uint32
}

func New(colSize, rowSize int) *Framebuffer {
	fb := &Framebuffer{}
	fb.Resize(colSize, rowSize)
	return fb
}

// Resize reallocates the buffer, discarding all samples.
func (f *Framebuffer) Resize(colSize, rowSize int) {
	f.ColSize = colSize
	f.RowSize = rowSize

	f.ColorSums = make([]float64, 3*colSize*rowSize)
	f.SampleCounts = make([]uint32, colSize*rowSize)
}

func (f *Framebuffer) index(c, r int) int {
	return r*f.ColSize + c
}

// RecordSamples adds count samples summing to sum into pixel (c, r).
func (f *Framebuffer) RecordSamples(c, r int, sum vec3.T, count int) {
	idx := f.index(c, r)
	f.ColorSums[3*idx+0] += sum[0]
	f.ColorSums[3*idx+1] += sum[1]
	f.ColorSums[3*idx+2] += sum[2]
	f.SampleCounts[idx] += uint32(count)
}

func (f *Framebuffer) ReadSample(c, r int) Sample {
	idx := f.index(c, r)
	return Sample{
		Sum:   vec3.T{f.ColorSums[3*idx+0], f.ColorSums[3*idx+1], f.ColorSums[3*idx+2]},
		Count: f.SampleCounts[idx],
	}
}

// Average returns the mean color of pixel (c, r), or black if it has no
// samples.
func (f *Framebuffer) Average(c, r int) vec3.T {
	s := f.ReadSample(c, r)
	if s.Count == 0 {
		return vec3.T{}
	}
	return vec3.DivVS(s.Sum, float64(s.Count))
}

func (f *Framebuffer) TotalSamples() int {
	total := 0
	for _, n := range f.SampleCounts {
		total += int(n)
	}
	return total
}

// MinSamples returns the smallest per-pixel sample count.
func (f *Framebuffer) MinSamples() int {
	if len(f.SampleCounts) == 0 {
		return 0
	}
	min := f.SampleCounts[0]
	for _, n := range f.SampleCounts[1:] {
		if n < min {
			min = n
		}
	}
	return int(min)
}

func ReadFramebuffer(in io.Reader) (*Framebuffer, error) {
	// Read header length.
	var headerLength uint64
	if err := binary.Read(in, binary.LittleEndian, &headerLength); err != nil {
		return nil, fmt.Errorf("while reading header length: %w", err)
	}

	if headerLength > maxHeaderLength {
		return nil, fmt.Errorf("header length %d exceeds limit %d", headerLength, maxHeaderLength)
	}

	headerBytes := make([]byte, int(headerLength))
	if _, err := io.ReadFull(in, headerBytes); err != nil {
		return nil, fmt.Errorf("while reading header bytes: %w", err)
	}

	hdr := &structpb.Struct{}
	if err := proto.Unmarshal(headerBytes, hdr); err != nil {
		return nil, fmt.Errorf("while unmarshaling header: %w", err)
	}

	fields := hdr.GetFields()
	if v := fields["data_layout_version"].GetNumberValue(); v != dataLayoutVersion {
		return nil, fmt.Errorf("bad data layout version: %v", v)
	}

	colValue := fields["col_size"].GetNumberValue()
	rowValue := fields["row_size"].GetNumberValue()
	if !(colValue >= 1 && colValue <= maxDimension) || !(rowValue >= 1 && rowValue <= maxDimension) {
		return nil, fmt.Errorf("bad dimensions %vx%v", colValue, rowValue)
	}
	colSize := int(colValue)
	rowSize := int(rowValue)
	if colSize*rowSize > maxPixels {
		return nil, fmt.Errorf("dimensions %dx%d exceed limit of %d pixels", colSize, rowSize, maxPixels)
	}

	fb := New(colSize, rowSize)

	zipReader, err := zlib.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("while opening zip reader: %w", err)
	}
	defer zipReader.Close()

	if err := binary.Read(zipReader, binary.LittleEndian, fb.ColorSums); err != nil {
		return nil, fmt.Errorf("while reading color sums: %w", err)
	}

	if err := binary.Read(zipReader, binary.LittleEndian, fb.SampleCounts); err != nil {
		return nil, fmt.Errorf("while reading sample counts: %w", err)
	}

	return fb, nil
}

func WriteFramebuffer(fb *Framebuffer, w io.Writer) error {
	hdr, err := structpb.NewStruct(map[string]interface{}{
		"col_size":            fb.ColSize,
		"row_size":            fb.RowSize,
		"data_layout_version": dataLayoutVersion,
	})
	if err != nil {
		return fmt.Errorf("while building header: %w", err)
	}

	hdrBytes, err := proto.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("while marshaling header: %w", err)
	}

	headerLengthBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(headerLengthBytes, uint64(len(hdrBytes)))
	if _, err := w.Write(headerLengthBytes); err != nil {
		return fmt.Errorf("while writing header length: %w", err)
	}

	if _, err := w.Write(hdrBytes); err != nil {
		return fmt.Errorf("while writing header: %w", err)
	}

	zipWriter := zlib.NewWriter(w)

	if err := binary.Write(zipWriter, binary.LittleEndian, fb.ColorSums); err != nil {
		return fmt.Errorf("while writing color sums: %w", err)
	}

	if err := binary.Write(zipWriter, binary.LittleEndian, fb.SampleCounts); err != nil {
		return fmt.Errorf("while writing sample counts: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("while closing zip writer: %w", err)
	}

	return nil
}
