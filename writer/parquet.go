package writer

import (
	"bytes"
	"fmt"
	"math"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"volflow/models"
)

// ParquetRecord is one defined grid node of an interpolated surface. The
// grid is flattened to rows so downstream scanners can query nodes without
// decoding nested structures; NaN nodes are not materialized.
type ParquetRecord struct {
	BatchID     string  `parquet:"name=batch_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Ticker      string  `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8"`
	BucketStart int64   `parquet:"name=bucket_start, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Moneyness   float64 `parquet:"name=moneyness, type=DOUBLE"`
	Maturity    float64 `parquet:"name=maturity, type=DOUBLE"`
	IV          float64 `parquet:"name=iv, type=DOUBLE"`
}

// memoryFileWriter implements ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (m *memoryFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memoryFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memoryFileWriter) Read(b []byte) (int, error)                { return m.buffer.Read(b) }
func (m *memoryFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memoryFileWriter) Close() error                              { return nil }
func (m *memoryFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

// surfaceRecords flattens a surface batch into parquet rows, one per
// defined grid node.
func surfaceRecords(batch models.SurfaceBatch) []ParquetRecord {
	s := batch.Surface
	records := make([]ParquetRecord, 0, s.DefinedNodes())
	for ti, row := range s.IV {
		for mi, v := range row {
			if math.IsNaN(v) {
				continue
			}
			records = append(records, ParquetRecord{
				BatchID:     batch.BatchID,
				Ticker:      batch.Ticker,
				BucketStart: s.Bucket.Start.UnixMilli(),
				Moneyness:   s.Moneyness[mi],
				Maturity:    s.Maturity[ti],
				IV:          v,
			})
		}
	}
	return records
}

// writeParquet renders the batch's defined grid nodes into fw with the
// configured compression.
func writeParquet(fw source.ParquetFile, batch models.SurfaceBatch, compression string) error {
	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}

	switch compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "lzo":
		pw.CompressionType = parquet.CompressionCodec_LZO
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, record := range surfaceRecords(batch) {
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return fmt.Errorf("write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	return nil
}

// createParquetFile renders the batch into an in-memory parquet file for
// upload.
func createParquetFile(batch models.SurfaceBatch, compression string) ([]byte, error) {
	fw := newMemoryFileWriter()
	if err := writeParquet(fw, batch, compression); err != nil {
		return nil, err
	}
	return fw.Bytes(), nil
}
