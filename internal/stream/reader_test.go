package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/linkedin/goavro/v2"

	apperrors "github.com/jittakal/rowload/internal/errors"
	"github.com/jittakal/rowload/pkg/batch"
	"github.com/jittakal/rowload/pkg/record"
)

func testSchema() *record.Schema {
	return record.NewSchema(
		record.Field{Name: "name", Type: record.TypeString},
		record.Field{Name: "qty", Type: record.TypeInt64},
	)
}

func csvSource(records []record.Record, delim string) *batch.SliceSource {
	return batch.NewSliceSource(records, batch.SliceSourceConfig{
		Schema:    testSchema(),
		Format:    record.FormatCSV,
		Delimiter: []byte(delim),
	})
}

// readChunks drains r with a fixed chunk size and returns the
// concatenated output.
func readChunks(t *testing.T, r io.Reader, size int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
}

func TestReader_CSVExample(t *testing.T) {
	records := []record.Record{
		record.New("a", int64(1)),
		record.New("b", int64(2)),
	}

	r := NewReader(csvSource(records, "\n"), Options{})
	got := readChunks(t, r, 64)

	if string(got) != "a,1\nb,2" {
		t.Errorf("stream = %q, want %q", got, "a,1\nb,2")
	}
}

func TestReader_ChunkingTransparent(t *testing.T) {
	records := []record.Record{
		record.New("alpha", int64(1)),
		record.New("", int64(2)),
		record.New("gamma", int64(3)),
	}

	want := readChunks(t, NewReader(csvSource(records, "\n"), Options{}), 1024)

	for _, size := range []int{1, 2, 3, 5, 7, 64} {
		r := NewReader(csvSource(records, "\n"), Options{})
		got := readChunks(t, r, size)
		if !bytes.Equal(got, want) {
			t.Errorf("chunk size %d: stream = %q, want %q", size, got, want)
		}
	}
}

func TestReader_DelimiterPlacement(t *testing.T) {
	tests := []struct {
		name    string
		records []record.Record
		delim   string
		want    string
	}{
		{
			name:    "single record has no delimiter",
			records: []record.Record{record.New("a", int64(1))},
			delim:   "\n",
			want:    "a,1",
		},
		{
			name: "multi byte delimiter",
			records: []record.Record{
				record.New("a", int64(1)),
				record.New("b", int64(2)),
				record.New("c", int64(3)),
			},
			delim: "\x02\x03",
			want:  "a,1\x02\x03b,2\x02\x03c,3",
		},
		{
			name:    "empty batch produces no bytes",
			records: nil,
			delim:   "\n",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(csvSource(tt.records, tt.delim), Options{})
			got := readChunks(t, r, 8)
			if string(got) != tt.want {
				t.Errorf("stream = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReader_PassThroughVerbatim(t *testing.T) {
	schema := record.NewSchema(record.Field{Name: "line", Type: record.TypeString})

	tests := []struct {
		name    string
		records []record.Record
		want    string
	}{
		{
			name:    "json document unchanged",
			records: []record.Record{record.New(`{"x":1}`)},
			want:    `{"x":1}`,
		},
		{
			name: "empty records keep their delimiters",
			records: []record.Record{
				record.New(""),
				record.New(""),
				record.New("tail"),
			},
			want: "\n\ntail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := batch.NewSliceSource(tt.records, batch.SliceSourceConfig{
				Schema:    schema,
				Format:    record.FormatPassThrough,
				Delimiter: []byte("\n"),
			})
			got := readChunks(t, NewReader(src, Options{}), 4)
			if string(got) != tt.want {
				t.Errorf("stream = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReader_PassThroughWrongShape(t *testing.T) {
	src := batch.NewSliceSource(
		[]record.Record{record.New(int64(42))},
		batch.SliceSourceConfig{
			Schema: record.NewSchema(record.Field{Name: "line", Type: record.TypeString}),
			Format: record.FormatPassThrough,
		},
	)

	_, err := NewReader(src, Options{}).Read(make([]byte, 16))
	var encodeErr *apperrors.EncodeError
	if !errors.As(err, &encodeErr) {
		t.Fatalf("Read() error = %v, want *EncodeError", err)
	}
}

func TestReader_JSONRows(t *testing.T) {
	records := []record.Record{
		record.New("a", int64(1)),
		record.New("b", int64(2)),
	}
	src := batch.NewSliceSource(records, batch.SliceSourceConfig{
		Schema:    testSchema(),
		Format:    record.FormatJSON,
		Delimiter: []byte("\n"),
	})

	out := readChunks(t, NewReader(src, Options{}), 16)
	lines := bytes.Split(out, []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var doc map[string]any
		if err := json.Unmarshal(line, &doc); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}

func TestReader_IdempotentEOF(t *testing.T) {
	r := NewReader(csvSource([]record.Record{record.New("a", int64(1))}, "\n"), Options{})
	readChunks(t, r, 8)

	buf := make([]byte, 8)
	for i := 0; i < 3; i++ {
		n, err := r.Read(buf)
		if n != 0 || err != io.EOF {
			t.Errorf("read %d after EOF = (%d, %v), want (0, io.EOF)", i, n, err)
		}
	}
}

func TestReader_ReleaseOnce(t *testing.T) {
	released := 0
	src := batch.NewSliceSource(
		[]record.Record{record.New("a", int64(1))},
		batch.SliceSourceConfig{
			Schema:    testSchema(),
			Format:    record.FormatCSV,
			OnRelease: func() { released++ },
		},
	)

	r := NewReader(src, Options{})
	readChunks(t, r, 8)

	// Extra reads and Close must not fire the hook again.
	r.Read(make([]byte, 8))
	r.Close()

	if released != 1 {
		t.Errorf("release hook fired %d times, want 1", released)
	}
}

func TestReader_CloseMidStream(t *testing.T) {
	released := 0
	src := batch.NewSliceSource(
		[]record.Record{record.New("a", int64(1)), record.New("b", int64(2))},
		batch.SliceSourceConfig{
			Schema:    testSchema(),
			Format:    record.FormatCSV,
			OnRelease: func() { released++ },
		},
	)

	r := NewReader(src, Options{})
	buf := make([]byte, 2)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if released != 1 {
		t.Errorf("release hook fired %d times after Close, want 1", released)
	}
	if _, err := r.Read(buf); !errors.Is(err, apperrors.ErrReaderClosed) {
		t.Errorf("Read() after Close error = %v, want ErrReaderClosed", err)
	}
}

func TestReader_UnsupportedFormat(t *testing.T) {
	src := &guardedSource{
		SliceSource: batch.NewSliceSource(
			[]record.Record{record.New("a", int64(1))},
			batch.SliceSourceConfig{Schema: testSchema(), Format: record.Format("xml")},
		),
		t: t,
	}

	_, err := NewReader(src, Options{}).Read(make([]byte, 8))
	var cfgErr *apperrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Read() error = %v, want *ConfigError", err)
	}
}

// guardedSource fails the test if a record is consumed.
type guardedSource struct {
	*batch.SliceSource
	t *testing.T
}

func (g *guardedSource) Next() (record.Record, error) {
	g.t.Fatal("Next() called before format dispatch succeeded")
	return record.Record{}, nil
}

func TestReader_SourceErrorPropagates(t *testing.T) {
	wantErr := &apperrors.SourceError{Err: errors.New("backing store gone")}
	src := &failingSource{err: wantErr}

	_, err := NewReader(src, Options{}).Read(make([]byte, 8))
	var srcErr *apperrors.SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("Read() error = %v, want *SourceError", err)
	}
}

// failingSource reports one available record whose pull fails.
type failingSource struct {
	err      error
	released bool
}

func (f *failingSource) HasNext() bool                { return true }
func (f *failingSource) Next() (record.Record, error) { return record.Record{}, f.err }
func (f *failingSource) Schema() *record.Schema       { return testSchema() }
func (f *failingSource) Format() record.Format        { return record.FormatCSV }
func (f *failingSource) Delimiter() []byte            { return []byte("\n") }
func (f *failingSource) BlockSize() int               { return 0 }
func (f *failingSource) Release()                     { f.released = true }

func avroRows(n int) []record.Record {
	rows := make([]record.Record, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, record.New("row", int64(i)))
	}
	return rows
}

func TestReader_AvroBlockCounts(t *testing.T) {
	// OCF containers start with the magic "Obj\x01"; counting magics
	// counts blocks in the concatenated stream.
	magic := []byte("Obj\x01")

	tests := []struct {
		name       string
		records    int
		blockSize  int
		wantBlocks int
	}{
		{"exact multiple", 6, 3, 2},
		{"remainder block", 7, 3, 3},
		{"single partial block", 2, 5, 1},
		{"threshold one", 3, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := batch.NewSliceSource(avroRows(tt.records), batch.SliceSourceConfig{
				Schema:    testSchema(),
				Format:    record.FormatAvro,
				BlockSize: tt.blockSize,
			})
			out := readChunks(t, NewReader(src, Options{}), 13)
			if got := bytes.Count(out, magic); got != tt.wantBlocks {
				t.Errorf("stream has %d blocks, want %d", got, tt.wantBlocks)
			}
		})
	}
}

func TestReader_OnBlockCallback(t *testing.T) {
	var counts []int
	var sizes []int
	src := batch.NewSliceSource(avroRows(7), batch.SliceSourceConfig{
		Schema:    testSchema(),
		Format:    record.FormatAvro,
		BlockSize: 3,
	})
	readChunks(t, NewReader(src, Options{
		OnBlock: func(records, bytes int) {
			counts = append(counts, records)
			sizes = append(sizes, bytes)
		},
	}), 13)

	want := []int{3, 3, 1}
	if len(counts) != len(want) {
		t.Fatalf("callback fired %d times, want %d", len(counts), len(want))
	}
	for i, n := range want {
		if counts[i] != n {
			t.Errorf("block %d has %d records, want %d", i, counts[i], n)
		}
		if sizes[i] == 0 {
			t.Errorf("block %d reported zero bytes", i)
		}
	}
}

func TestReader_OnBlockNotFiredForRowFormats(t *testing.T) {
	src := csvSource(avroRows(3), "\n")
	fired := false
	readChunks(t, NewReader(src, Options{
		OnBlock: func(records, bytes int) { fired = true },
	}), 13)
	if fired {
		t.Error("OnBlock fired for a row format")
	}
}

func TestReader_AvroBlockRoundTrip(t *testing.T) {
	src := batch.NewSliceSource(avroRows(4), batch.SliceSourceConfig{
		Schema:    testSchema(),
		Format:    record.FormatAvro,
		BlockSize: 10,
	})
	out := readChunks(t, NewReader(src, Options{}), 32)

	ocf, err := goavro.NewOCFReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("stream is not a valid OCF container: %v", err)
	}

	count := 0
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			t.Fatalf("failed to read datum: %v", err)
		}
		row, ok := datum.(map[string]any)
		if !ok {
			t.Fatalf("datum = %T, want map", datum)
		}
		if row["name"] != "row" {
			t.Errorf("name = %v, want %q", row["name"], "row")
		}
		count++
	}
	if count != 4 {
		t.Errorf("decoded %d records, want 4", count)
	}
}

func TestReader_ParquetBlocks(t *testing.T) {
	src := batch.NewSliceSource(avroRows(5), batch.SliceSourceConfig{
		Schema:    testSchema(),
		Format:    record.FormatParquet,
		BlockSize: 2,
	})
	out := readChunks(t, NewReader(src, Options{}), 64)

	// Each parquet file blob begins and ends with the PAR1 magic.
	if !bytes.HasPrefix(out, []byte("PAR1")) {
		t.Fatal("stream does not start with parquet magic")
	}
	if !bytes.HasSuffix(out, []byte("PAR1")) {
		t.Fatal("stream does not end with parquet magic")
	}
}

func TestReader_ColumnarChunkingTransparent(t *testing.T) {
	newSource := func() *batch.SliceSource {
		return batch.NewSliceSource(avroRows(5), batch.SliceSourceConfig{
			Schema:    testSchema(),
			Format:    record.FormatAvro,
			BlockSize: 2,
		})
	}

	want := readChunks(t, NewReader(newSource(), Options{}), 4096)
	got := readChunks(t, NewReader(newSource(), Options{}), 1)
	if !bytes.Equal(got, want) {
		t.Errorf("single byte reads diverge from bulk read: %d vs %d bytes", len(got), len(want))
	}
}

func TestReader_EmptyReadBuffer(t *testing.T) {
	r := NewReader(csvSource([]record.Record{record.New("a", int64(1))}, "\n"), Options{})

	n, err := r.Read(nil)
	if n != 0 || err != nil {
		t.Errorf("Read(nil) = (%d, %v), want (0, nil)", n, err)
	}

	readChunks(t, r, 8)
	if _, err := r.Read(nil); err != io.EOF {
		t.Errorf("Read(nil) after drain error = %v, want io.EOF", err)
	}
}
