package leb128

import (
	"errors"
	"fmt"
	"io"
)

const (
	maxVarintLen32 = 5
	maxVarintLen64 = 10

	int33Mask  int64 = 1 << 7
	int33Mask2       = ^int33Mask
	int33Mask3       = 1 << 6
	int33Mask4       = 8589934591 // 2^33-1
	int33Mask5       = 1 << 32
	int33Mask6       = int33Mask4 + 1 // 2^33

	int64Mask3 = 1 << 6
	int64Mask4 = ^0
)

var (
	errOverflow32 = errors.New("overflows a 32-bit integer")
	errOverflow33 = errors.New("overflows a 33-bit integer")
	errOverflow64 = errors.New("overflows a 64-bit integer")
)

// EncodeInt32 encodes the signed value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_signed_integer
func EncodeInt32(value int32) []byte {
	return EncodeInt64(int64(value))
}

// EncodeInt64 encodes the signed value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_signed_integer
func EncodeInt64(value int64) (buf []byte) {
	for {
		// Take 7 remaining low-order bits from the value into b.
		b := uint8(value & 0x7f)
		// Extract the sign bit.
		s := uint8(value & 0x40)
		value >>= 7

		// Signed numbers are done when the remaining value is all sign bits and the sign bit was already emitted.
		if (value != -1 || s == 0) && (value != 0 || s != 0) {
			b |= 0x80
		}

		buf = append(buf, b)
		if b&0x80 == 0 {
			break
		}
	}
	return buf
}

// EncodeUint32 encodes the value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_unsigned_integer
func EncodeUint32(value uint32) []byte {
	return EncodeUint64(uint64(value))
}

// EncodeUint64 encodes the value into a buffer in LEB128 format
//
// See https://en.wikipedia.org/wiki/LEB128#Encode_unsigned_integer
func EncodeUint64(value uint64) (buf []byte) {
	for {
		b := uint8(value & 0x7f)
		value = value >> 7

		// If there are remaining bits, set the high-order bit to tell the reader there are more bytes.
		if value != 0 {
			b |= 0x80
		}

		buf = append(buf, b)
		if b&0x80 == 0 {
			return buf
		}
	}
}

type nextByte func(i int) (byte, error)

func sliceReader(buf []byte) nextByte {
	return func(i int) (byte, error) {
		if i >= len(buf) {
			return 0, io.EOF
		}
		return buf[i], nil
	}
}

func byteReader(r io.ByteReader) nextByte {
	return func(int) (byte, error) {
		return r.ReadByte()
	}
}

// LoadUint32 decodes an unsigned 32-bit integer from the head of buf, returning the number of bytes read.
func LoadUint32(buf []byte) (ret uint32, bytesRead uint64, err error) {
	return decodeUint32(sliceReader(buf))
}

// DecodeUint32 is like LoadUint32, except it reads from r.
func DecodeUint32(r io.ByteReader) (ret uint32, bytesRead uint64, err error) {
	return decodeUint32(byteReader(r))
}

func decodeUint32(next nextByte) (ret uint32, bytesRead uint64, err error) {
	var s uint32
	for i := 0; i < maxVarintLen32; i++ {
		b, err := next(i)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		if b < 0x80 {
			// Unused bits must be all zero.
			if i == maxVarintLen32-1 && (b&0xf0) > 0 {
				return 0, 0, errOverflow32
			}
			return ret | uint32(b)<<s, uint64(i) + 1, nil
		}
		ret |= (uint32(b) & 0x7f) << s
		s += 7
	}
	return 0, 0, errOverflow32
}

// LoadUint64 decodes an unsigned 64-bit integer from the head of buf, returning the number of bytes read.
func LoadUint64(buf []byte) (ret uint64, bytesRead uint64, err error) {
	return decodeUint64(sliceReader(buf))
}

// DecodeUint64 is like LoadUint64, except it reads from r.
func DecodeUint64(r io.ByteReader) (ret uint64, bytesRead uint64, err error) {
	return decodeUint64(byteReader(r))
}

func decodeUint64(next nextByte) (ret uint64, bytesRead uint64, err error) {
	var s uint64
	for i := 0; i < maxVarintLen64; i++ {
		b, err := next(i)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		if b < 0x80 {
			// Only the lowest bit of the last byte may be used.
			if i == maxVarintLen64-1 && b > 1 {
				return 0, 0, errOverflow64
			}
			return ret | uint64(b)<<s, uint64(i) + 1, nil
		}
		ret |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, 0, errOverflow64
}

// LoadInt32 decodes a signed 32-bit integer from the head of buf, returning the number of bytes read.
func LoadInt32(buf []byte) (ret int32, bytesRead uint64, err error) {
	return decodeInt32(sliceReader(buf))
}

// DecodeInt32 is like LoadInt32, except it reads from r.
func DecodeInt32(r io.ByteReader) (ret int32, bytesRead uint64, err error) {
	return decodeInt32(byteReader(r))
}

func decodeInt32(next nextByte) (ret int32, bytesRead uint64, err error) {
	var shift int
	var b byte
	for {
		if b, err = next(int(bytesRead)); err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		ret |= (int32(b) & 0x7f) << shift
		shift += 7
		bytesRead++
		if b&0x80 == 0 {
			if shift < 32 && (b&0x40) != 0 {
				ret |= ^0 << shift
			}
			if unused := b & 0b00100000; bytesRead == maxVarintLen32 && ret < 0 && unused == 0 {
				return 0, 0, errOverflow32
			} else if bytesRead == maxVarintLen32 && ret >= 0 && unused != 0x00 {
				return 0, 0, errOverflow32
			}
			return
		} else if bytesRead == maxVarintLen32 {
			return 0, 0, errOverflow32
		}
	}
}

// DecodeInt33AsInt64 decodes a signed 33-bit integer as used by block types, widened to int64.
func DecodeInt33AsInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	return decodeInt33AsInt64(byteReader(r))
}

// LoadInt33AsInt64 is like DecodeInt33AsInt64, except it reads from the head of buf.
func LoadInt33AsInt64(buf []byte) (ret int64, bytesRead uint64, err error) {
	return decodeInt33AsInt64(sliceReader(buf))
}

func decodeInt33AsInt64(next nextByte) (ret int64, bytesRead uint64, err error) {
	var shift int
	var b int64
	for shift < 35 {
		rb, err := next(int(bytesRead))
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		b = int64(rb)
		bytesRead++
		ret |= (b & int33Mask2) << shift
		shift += 7
		if b&int33Mask == 0 {
			break
		} else if bytesRead == maxVarintLen32 {
			return 0, 0, errOverflow33
		}
	}

	if shift < 33 && (b&int33Mask3) == int33Mask3 {
		ret |= int33Mask4 << shift
	}
	ret = ret & int33Mask4

	// The 33rd bit set means a negative signed-33bit value.
	if ret&int33Mask5 > 0 {
		ret = ret - int33Mask6
	}
	return ret, bytesRead, nil
}

// LoadInt64 decodes a signed 64-bit integer from the head of buf, returning the number of bytes read.
func LoadInt64(buf []byte) (ret int64, bytesRead uint64, err error) {
	return decodeInt64(sliceReader(buf))
}

// DecodeInt64 is like LoadInt64, except it reads from r.
func DecodeInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	return decodeInt64(byteReader(r))
}

func decodeInt64(next nextByte) (ret int64, bytesRead uint64, err error) {
	var shift int
	var b byte
	for {
		if b, err = next(int(bytesRead)); err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		ret |= (int64(b) & 0x7f) << shift
		shift += 7
		bytesRead++
		if b&0x80 == 0 {
			if shift < 64 && (b&int64Mask3) == int64Mask3 {
				ret |= int64Mask4 << shift
			}
			if unused := b & 0b00111110; bytesRead == maxVarintLen64 && ret < 0 && unused != 0b00111110 {
				return 0, 0, errOverflow64
			} else if bytesRead == maxVarintLen64 && ret >= 0 && unused != 0x00 {
				return 0, 0, errOverflow64
			}
			return
		} else if bytesRead == maxVarintLen64 {
			return 0, 0, errOverflow64
		}
	}
}
