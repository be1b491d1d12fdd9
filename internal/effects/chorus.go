package effects

import "math"

// Chorus is a stereo modulated delay. Two LFOs a quarter cycle apart
// sweep the read position of a short delay line, thickening the sound.
type Chorus struct {
	bufL, bufR []float32
	pos        int

	rate  float64 // LFO rate, Hz
	depth float64 // modulation depth, seconds
	delay float64 // base delay, seconds
	mix   float32

	phaseL, phaseR float64
	sampleRate     float64
}

// NewChorus creates a chorus. rateHz is the LFO rate, depth the
// modulation depth in seconds, mix the wet fraction.
func NewChorus(sampleRate int, rateHz, depth, mix float64) *Chorus {
	const maxDelay = 0.05
	size := int(float64(sampleRate)*maxDelay) + 1
	return &Chorus{
		bufL:       make([]float32, size),
		bufR:       make([]float32, size),
		rate:       clamp(rateHz, 0.1, 10),
		depth:      clamp(depth, 0, 0.01),
		delay:      0.015,
		mix:        float32(clamp(mix, 0, 1)),
		phaseR:     0.25,
		sampleRate: float64(sampleRate),
	}
}

func (c *Chorus) Process(l, r float32) (float32, float32) {
	size := len(c.bufL)
	c.bufL[c.pos] = l
	c.bufR[c.pos] = r

	lfoL := math.Sin(2 * math.Pi * c.phaseL)
	lfoR := math.Sin(2 * math.Pi * c.phaseR)
	delL := clamp((c.delay+c.depth*lfoL)*c.sampleRate, 1, float64(size-1))
	delR := clamp((c.delay+c.depth*lfoR)*c.sampleRate, 1, float64(size-1))

	wetL := readFrac(c.bufL, c.pos, delL)
	wetR := readFrac(c.bufR, c.pos, delR)

	c.pos = (c.pos + 1) % size
	inc := c.rate / c.sampleRate
	c.phaseL = math.Mod(c.phaseL+inc, 1)
	c.phaseR = math.Mod(c.phaseR+inc, 1)

	return l*(1-c.mix) + wetL*c.mix, r*(1-c.mix) + wetR*c.mix
}

func (c *Chorus) Reset() {
	for i := range c.bufL {
		c.bufL[i] = 0
		c.bufR[i] = 0
	}
	c.phaseL = 0
	c.phaseR = 0.25
	c.pos = 0
}

// readFrac reads a delay line at a fractional offset behind writePos
// with linear interpolation.
func readFrac(buf []float32, writePos int, delaySamples float64) float32 {
	size := len(buf)
	di := int(delaySamples)
	frac := float32(delaySamples - float64(di))
	p0 := writePos - di
	if p0 < 0 {
		p0 += size
	}
	p1 := p0 - 1
	if p1 < 0 {
		p1 += size
	}
	s0 := buf[p0]
	s1 := buf[p1]
	return s0 + frac*(s1-s0)
}
