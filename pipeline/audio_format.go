package pipeline

type AudioFormat int

const (
	AudioFormatUnknown = AudioFormat(iota)
	AudioFormatS8
	AudioFormatU8
	AudioFormatS16LE
	AudioFormatS24LE
	AudioFormatS24_32LE
	AudioFormatS32LE
	AudioFormatF32LE
	AudioFormatF64LE
)

var audioFormatNames = map[AudioFormat]string{
	AudioFormatS8:       "S8",
	AudioFormatU8:       "U8",
	AudioFormatS16LE:    "S16LE",
	AudioFormatS24LE:    "S24LE",
	AudioFormatS24_32LE: "S24_32LE",
	AudioFormatS32LE:    "S32LE",
	AudioFormatF32LE:    "F32LE",
	AudioFormatF64LE:    "F64LE",
}

func AudioFormatFromString(s string) AudioFormat {
	for f, name := range audioFormatNames {
		if name == s {
			return f
		}
	}
	return AudioFormatUnknown
}

func (f AudioFormat) String() string {
	if name, ok := audioFormatNames[f]; ok {
		return name
	}
	return "unknown"
}

// Width is the amount of bits a sample occupies in memory.
func (f AudioFormat) Width() int {
	switch f {
	case AudioFormatS8, AudioFormatU8:
		return 8
	case AudioFormatS16LE:
		return 16
	case AudioFormatS24LE:
		return 24
	case AudioFormatS24_32LE, AudioFormatS32LE, AudioFormatF32LE:
		return 32
	case AudioFormatF64LE:
		return 64
	}
	return 0
}

// Depth is the amount of significant bits of a sample.
func (f AudioFormat) Depth() int {
	if f == AudioFormatS24_32LE {
		return 24
	}
	return f.Width()
}

func (f AudioFormat) IsFloat() bool {
	return f == AudioFormatF32LE || f == AudioFormatF64LE
}
