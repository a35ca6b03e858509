// Package stream implements the pull-based byte reader over a row batch
// source.
//
// Reader turns the records of one load attempt into a single byte
// stream, suitable as the body of a chunked HTTP stream-load request.
// Records are serialized on demand, one pull at a time; the full record
// set is never materialized.
//
// # Byte contract
//
// For row formats (csv, json, passthrough) the stream reads as
//
//	record_1 DELIM record_2 DELIM ... record_n
//
// with no leading and no trailing delimiter. For columnar formats
// (avro, parquet) the stream is a concatenation of self-framed blocks
// of up to BlockSize records each, with no inter-block delimiter.
//
// # Read semantics
//
// Reader is an io.ReadCloser. Read fills as much of p as the currently
// staged buffer allows; delimiter bytes and payload bytes are never
// mixed in a single call, which costs at most one extra call per record
// but keeps the cursor arithmetic trivial. Chunking is transparent: for
// any sequence of read sizes, including one byte at a time, the
// concatenated output is identical. io.EOF is returned once all records
// and trailing framing bytes have been drained, and on every call after
// that.
//
// # Lifecycle
//
// A Reader is bound to exactly one batch source and is not reusable: it
// is constructed per load attempt and discarded after io.EOF or any
// error. The source's Release hook fires exactly once, at exhaustion or
// on Close, whichever comes first. Close also releases block writer
// resources when the caller abandons the stream mid-batch.
//
// The reader is single-threaded and purely pull-driven. It performs no
// I/O of its own; any blocking belongs to the transport calling Read
// and to the source's iterator.
package stream
