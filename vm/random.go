package vm

import "time"

// Random is the linear congruential generator of the legacy C runtime the
// game engine was built with. Sequences must match the engine bit for bit.
type Random struct {
	state uint32
}

// NewRandom returns a generator with the given seed.
func NewRandom(seed uint32) *Random {
	return &Random{state: seed}
}

// NewClockRandom returns a generator seeded from the monotonic clock.
func NewClockRandom() *Random {
	return NewRandom(uint32(time.Since(processStart).Nanoseconds()) ^ uint32(time.Now().UnixNano()))
}

var processStart = time.Now()

// Seed resets the generator state.
func (r *Random) Seed(seed uint32) {
	r.state = seed
}

// Next advances the generator and returns a value in [0, 0x7FFF].
func (r *Random) Next() uint32 {
	r.state = r.state*0x343FD + 0x269EC3
	return (r.state >> 16) & 0x7FFF
}
