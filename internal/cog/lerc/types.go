// Package lerc implements the LERC2 (Limited Error Raster Compression)
// sub-codec used by COG tiles whose TIFF compression tag selects LERC.
// Ported from the project's original Rust lerc2 decoder, grounded on
// crates/lerc-decoder/src/lerc2.rs, huffman.rs and fpl.rs.
package lerc

import (
	"errors"
	"fmt"
)

// DataType is LERC2's own type tag, independent of the outer TIFF sample
// format (spec.md §4.5.1).
type DataType int32

const (
	DTChar DataType = iota
	DTByte
	DTShort
	DTUShort
	DTInt
	DTUInt
	DTFloat
	DTDouble
	DTUndefined
)

func dataTypeFromInt(v int32) (DataType, bool) {
	if v < 0 || v > int32(DTDouble) {
		return DTUndefined, false
	}
	return DataType(v), true
}

func (dt DataType) size() int {
	switch dt {
	case DTChar, DTByte:
		return 1
	case DTShort, DTUShort:
		return 2
	case DTInt, DTUInt, DTFloat:
		return 4
	case DTDouble:
		return 8
	default:
		return 0
	}
}

func (e *decodeError) Error() string { return e.msg }

// errKind categorizes decode failures so the chunk reader can surface them
// through its own error taxonomy (checksum mismatch, unsupported version,
// Huffman vs FPL codec failures) instead of one opaque kind.
type errKind int

const (
	errKindGeneric errKind = iota
	errKindChecksum
	errKindVersion
	errKindHuffman
	errKindFpl
)

type decodeError struct {
	kind errKind
	msg  string
}

func errf(format string, args ...interface{}) error {
	return &decodeError{kind: errKindGeneric, msg: fmt.Sprintf(format, args...)}
}

func errChecksumf(format string, args ...interface{}) error {
	return &decodeError{kind: errKindChecksum, msg: fmt.Sprintf(format, args...)}
}

func errVersionf(format string, args ...interface{}) error {
	return &decodeError{kind: errKindVersion, msg: fmt.Sprintf(format, args...)}
}

func errHuffmanf(format string, args ...interface{}) error {
	return &decodeError{kind: errKindHuffman, msg: fmt.Sprintf(format, args...)}
}

func errFplf(format string, args ...interface{}) error {
	return &decodeError{kind: errKindFpl, msg: fmt.Sprintf(format, args...)}
}

func errHasKind(err error, kind errKind) bool {
	var de *decodeError
	return errors.As(err, &de) && de.kind == kind
}

// IsChecksumMismatch reports whether err is a Fletcher-32 verification
// failure.
func IsChecksumMismatch(err error) bool { return errHasKind(err, errKindChecksum) }

// IsUnsupportedVersion reports whether err rejects the blob's LERC2
// version.
func IsUnsupportedVersion(err error) bool { return errHasKind(err, errKindVersion) }

// IsHuffmanError reports whether err came from the Huffman sub-decoder.
func IsHuffmanError(err error) bool { return errHasKind(err, errKindHuffman) }

// IsFplError reports whether err came from the float-point-lossless
// sub-decoder.
func IsFplError(err error) bool { return errHasKind(err, errKindFpl) }

// imageEncodeMode selects the whole-image encoding used when the data
// isn't in raw one-sweep form.
type imageEncodeMode int

const (
	modeTiling imageEncodeMode = iota
	modeDeltaHuffman
	modeHuffman
	modeDeltaDeltaHuffman // float-point lossless (FPL)
)

func imageEncodeModeFromByte(b byte) (imageEncodeMode, bool) {
	if b > 3 {
		return 0, false
	}
	return imageEncodeMode(b), true
}

// header is the parsed LERC2 preamble (spec.md §4.5.1).
type header struct {
	Version          int32
	Checksum         uint32
	NRows, NCols     int32
	NDepth           int32
	NumValidPixel    int32
	MicroBlockSize   int32
	BlobSize         int32
	NBlobsMore       int32
	DT               DataType
	MaxZError        float64
	ZMin, ZMax       float64
	PassNoDataValues bool
	IsInt            bool
	NoDataVal        float64
	NoDataValOrig    float64
}

func (h *header) tryHuffmanInt() bool {
	return h.Version >= 2 && (h.DT == DTByte || h.DT == DTChar) && h.MaxZError == 0.5
}

func (h *header) tryHuffmanFloat() bool {
	return h.Version >= 6 && (h.DT == DTFloat || h.DT == DTDouble) && h.MaxZError == 0.0
}

const fileKey = "Lerc2 "
const currentVersion = 6
