package effects

// Delay is a stereo delay line with feedback.
type Delay struct {
	bufL, bufR []float32
	pos        int

	delaySamples int
	feedback     float32
	mix          float32
}

// NewDelay creates a delay. delayTime is in seconds; the line is sized
// to it, so the time is fixed for the life of the effect.
func NewDelay(sampleRate int, delayTime, feedback, mix float64) *Delay {
	n := int(clamp(delayTime, 0.001, 5) * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return &Delay{
		bufL:         make([]float32, n+1),
		bufR:         make([]float32, n+1),
		delaySamples: n,
		feedback:     float32(clamp(feedback, 0, 0.99)),
		mix:          float32(clamp(mix, 0, 1)),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	size := len(d.bufL)
	readPos := d.pos - d.delaySamples
	if readPos < 0 {
		readPos += size
	}
	delL := d.bufL[readPos]
	delR := d.bufR[readPos]

	d.bufL[d.pos] = l + delL*d.feedback
	d.bufR[d.pos] = r + delR*d.feedback
	d.pos = (d.pos + 1) % size

	return l*(1-d.mix) + delL*d.mix, r*(1-d.mix) + delR*d.mix
}

func (d *Delay) Reset() {
	for i := range d.bufL {
		d.bufL[i] = 0
		d.bufR[i] = 0
	}
	d.pos = 0
}
