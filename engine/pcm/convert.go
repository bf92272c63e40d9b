package pcm

import "encoding/binary"

// U8ToS16 widens unsigned 8-bit samples into signed little-endian 16-bit
// samples. dst must hold 2*len(src) bytes. Returns bytes written.
func U8ToS16(dst, src []byte) int {
	n := len(src)
	if len(dst) < n*2 {
		n = len(dst) / 2
	}
	for i := 0; i < n; i++ {
		v := (int16(src[i]) - 128) << 8
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], uint16(v))
	}
	return n * 2
}

// S16ToU8 narrows signed 16-bit samples into unsigned 8-bit samples.
// Returns bytes written.
func S16ToU8(dst, src []byte) int {
	n := len(src) / 2
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(src[i*2 : i*2+2]))
		dst[i] = byte((v >> 8) + 128)
	}
	return n
}

// StereoToMono converts interleaved stereo PCM16LE (L,R) into mono PCM16LE
// by averaging both channels. Returns bytes written to dst.
func StereoToMono(dst []byte, src []byte) int {
	nPairs := len(src) / 4
	if len(dst) < nPairs*2 {
		nPairs = len(dst) / 2
	}
	for i := 0; i < nPairs; i++ {
		off := i * 4
		l := int16(binary.LittleEndian.Uint16(src[off : off+2]))
		r := int16(binary.LittleEndian.Uint16(src[off+2 : off+4]))
		m := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], uint16(m))
	}
	return nPairs * 2
}

// MonoToStereo duplicates mono PCM16LE into interleaved stereo (L=R=mono).
// Returns bytes written to dst.
func MonoToStereo(dst []byte, src []byte) int {
	n := len(src) / 2
	if len(dst) < n*4 {
		n = len(dst) / 4
	}
	for i := 0; i < n; i++ {
		s := binary.LittleEndian.Uint16(src[i*2 : i*2+2])
		off := i * 4
		binary.LittleEndian.PutUint16(dst[off:off+2], s)
		binary.LittleEndian.PutUint16(dst[off+2:off+4], s)
	}
	return n * 4
}

// BytesToS16 decodes little-endian samples into dst, growing it when needed.
func BytesToS16(dst []int16, src []byte) []int16 {
	n := len(src) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	} else {
		dst = dst[:n]
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2 : i*2+2]))
	}
	return dst
}

// S16ToBytes encodes samples as little-endian bytes into dst, growing it
// when needed.
func S16ToBytes(dst []byte, src []int16) []byte {
	need := len(src) * 2
	if cap(dst) < need {
		dst = make([]byte, need)
	} else {
		dst = dst[:need]
	}
	for i, s := range src {
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], uint16(s))
	}
	return dst
}

// Sample reads the i-th 16-bit sample of b.
func Sample(b []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(b[i*2:]))
}

// PutSample writes the i-th 16-bit sample of b.
func PutSample(b []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
}

// Silence fills frames of f with the format's zero level.
func Silence(dst []byte, f Format) {
	if f.Bits == 8 {
		for i := range dst {
			dst[i] = 0x80
		}
		return
	}
	clear(dst)
}
