package effects

// Reverb is a Schroeder/Freeverb-style reverb: eight parallel damped
// comb filters per channel into four series allpasses, with the right
// channel's delay lines offset for stereo spread.
type Reverb struct {
	combL, combR []comb
	apL, apR     []allpass

	mix   float32
	width float32
	gain  float32
}

var combTuning = [8]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
var allpassTuning = [4]int{556, 441, 341, 225}

const stereoSpread = 23

type comb struct {
	buf          []float32
	idx          int
	feedback     float32
	damp1, damp2 float32
	store        float32
}

func (c *comb) process(in float32) float32 {
	out := c.buf[c.idx]
	c.store = out*c.damp2 + c.store*c.damp1
	c.buf[c.idx] = in + c.store*c.feedback
	c.idx++
	if c.idx >= len(c.buf) {
		c.idx = 0
	}
	return out
}

type allpass struct {
	buf      []float32
	idx      int
	feedback float32
}

func (a *allpass) process(in float32) float32 {
	bufOut := a.buf[a.idx]
	a.buf[a.idx] = in + bufOut*a.feedback
	a.idx++
	if a.idx >= len(a.buf) {
		a.idx = 0
	}
	return bufOut - in
}

// NewReverb creates a reverb. roomSize scales decay, damping darkens
// the tail, mix is the wet fraction. Delay tunings are scaled from
// their 44.1 kHz reference values.
func NewReverb(sampleRate int, roomSize, damping, mix float64) *Reverb {
	scale := float64(sampleRate) / 44100.0
	feedback := float32(clamp(roomSize, 0, 1)*0.28 + 0.7)
	damp := float32(clamp(damping, 0, 1))

	mk := func(tunings []int, offset int) []comb {
		out := make([]comb, len(tunings))
		for i, t := range tunings {
			size := int(float64(t)*scale) + offset
			out[i] = comb{
				buf:      make([]float32, size),
				feedback: feedback,
				damp1:    damp,
				damp2:    1 - damp,
			}
		}
		return out
	}
	mkAP := func(tunings []int, offset int) []allpass {
		out := make([]allpass, len(tunings))
		for i, t := range tunings {
			size := int(float64(t)*scale) + offset
			out[i] = allpass{buf: make([]float32, size), feedback: 0.5}
		}
		return out
	}

	return &Reverb{
		combL: mk(combTuning[:], 0),
		combR: mk(combTuning[:], stereoSpread),
		apL:   mkAP(allpassTuning[:], 0),
		apR:   mkAP(allpassTuning[:], stereoSpread),
		mix:   float32(clamp(mix, 0, 1)),
		width: 1,
		gain:  0.015,
	}
}

func (rv *Reverb) Process(l, r float32) (float32, float32) {
	in := (l + r) * rv.gain

	var outL, outR float32
	for i := range rv.combL {
		outL += rv.combL[i].process(in)
	}
	for i := range rv.combR {
		outR += rv.combR[i].process(in)
	}
	for i := range rv.apL {
		outL = rv.apL[i].process(outL)
	}
	for i := range rv.apR {
		outR = rv.apR[i].process(outR)
	}

	wet1 := rv.width/2 + 0.5
	wet2 := (1 - rv.width) / 2
	wetL := outL*wet1 + outR*wet2
	wetR := outR*wet1 + outL*wet2

	return l*(1-rv.mix) + wetL*rv.mix, r*(1-rv.mix) + wetR*rv.mix
}

func (rv *Reverb) Reset() {
	for i := range rv.combL {
		clearBuf(rv.combL[i].buf)
		rv.combL[i].store = 0
		rv.combL[i].idx = 0
	}
	for i := range rv.combR {
		clearBuf(rv.combR[i].buf)
		rv.combR[i].store = 0
		rv.combR[i].idx = 0
	}
	for i := range rv.apL {
		clearBuf(rv.apL[i].buf)
		rv.apL[i].idx = 0
	}
	for i := range rv.apR {
		clearBuf(rv.apR[i].buf)
		rv.apR[i].idx = 0
	}
}

func clearBuf(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
