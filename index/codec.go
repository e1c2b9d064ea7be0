package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/mwantia/gridindex/data"
	"github.com/zeebo/blake3"
)

// File layout
//
//	offset size field
//	0      4    magic "GIDX"
//	4      2    format version
//	6      1    kind (1 collection, 2 partition)
//	7      1    compression (1 zstd)
//	8      16   build id
//	24     8    built at, unix nanoseconds
//	32     8    payload length
//	40     32   blake3 checksum of the payload
//	72     ...  payload: zstd compressed deterministic CBOR
//
// The first six bytes are frozen across versions so any reader can tell a
// foreign or outdated file from a corrupted one.
const (
	Magic      = "GIDX"
	Version    = uint16(1)
	HeaderSize = 72

	compressionZstd = uint8(1)

	// Upper bound accepted for a payload, guards against corrupted lengths
	maxPayloadSize = 1 << 34
)

// Header is the fixed-size prefix of every index file.
type Header struct {
	Version     uint16
	Kind        data.UnitKind
	Compression uint8
	BuildID     uuid.UUID
	BuiltAt     time.Time
	PayloadSize uint64
	Checksum    [32]byte
}

func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = uint8(h.Kind)
	buf[7] = h.Compression
	copy(buf[8:24], h.BuildID[:])
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.BuiltAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[32:40], h.PayloadSize)
	copy(buf[40:72], h.Checksum[:])
	return buf, nil
}

// UnmarshalBinary decodes a header. A foreign magic is reported as
// data.ErrCorruptIndex, an unknown version as data.ErrVersionMismatch.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < 6 || string(buf[0:4]) != Magic {
		return fmt.Errorf("%w: bad magic", data.ErrCorruptIndex)
	}

	h.Version = binary.BigEndian.Uint16(buf[4:6])
	if h.Version != Version {
		return fmt.Errorf("%w: version %d, want %d", data.ErrVersionMismatch, h.Version, Version)
	}
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: truncated header", data.ErrCorruptIndex)
	}

	h.Kind = data.UnitKind(buf[6])
	h.Compression = buf[7]
	copy(h.BuildID[:], buf[8:24])
	h.BuiltAt = time.Unix(0, int64(binary.BigEndian.Uint64(buf[24:32]))).UTC()
	h.PayloadSize = binary.BigEndian.Uint64(buf[32:40])
	copy(h.Checksum[:], buf[40:72])

	if h.Kind != data.KindCollection && h.Kind != data.KindPartition {
		return fmt.Errorf("%w: unknown kind %d", data.ErrCorruptIndex, h.Kind)
	}
	if h.Compression != compressionZstd {
		return fmt.Errorf("%w: unknown compression %d", data.ErrCorruptIndex, h.Compression)
	}
	if h.PayloadSize > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d", data.ErrCorruptIndex, h.PayloadSize)
	}
	return nil
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error

	// Core deterministic encoding: same logical index, same payload bytes
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("index: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 27,
	}.DecMode()
	if err != nil {
		panic("index: CBOR decoder initialization failed: " + err.Error())
	}

	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("index: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("index: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode serializes v as an index file of the given kind into w.
func Encode(w io.Writer, kind data.UnitKind, buildID uuid.UUID, builtAt time.Time, v any) error {
	raw, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode index payload: %w", err)
	}
	payload := encoder.EncodeAll(raw, nil)

	header := Header{
		Version:     Version,
		Kind:        kind,
		Compression: compressionZstd,
		BuildID:     buildID,
		BuiltAt:     builtAt,
		PayloadSize: uint64(len(payload)),
		Checksum:    blake3.Sum256(payload),
	}
	buf, err := header.MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := w.Write(buf); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadHeader reads only the fixed-size header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", data.ErrCorruptIndex)
		}
		return nil, err
	}

	var header Header
	if err := header.UnmarshalBinary(buf[:n]); err != nil {
		return nil, err
	}
	return &header, nil
}

// Decode reads an index file of the expected kind from r into v.
func Decode(r io.Reader, kind data.UnitKind, v any) (*Header, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if header.Kind != kind {
		return nil, fmt.Errorf("%w: got %s, want %s", data.ErrIndexKind, header.Kind, kind)
	}

	var payload bytes.Buffer
	n, err := io.Copy(&payload, io.LimitReader(r, int64(header.PayloadSize)))
	if err != nil {
		return nil, err
	}
	if uint64(n) != header.PayloadSize {
		return nil, fmt.Errorf("%w: truncated payload", data.ErrCorruptIndex)
	}
	if blake3.Sum256(payload.Bytes()) != header.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", data.ErrCorruptIndex)
	}

	raw, err := decoder.DecodeAll(payload.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", data.ErrCorruptIndex, err)
	}
	if err := decMode.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%w: %w", data.ErrCorruptIndex, err)
	}
	return header, nil
}
