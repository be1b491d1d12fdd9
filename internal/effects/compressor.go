package effects

import "math"

// Compressor is a feed-forward dynamics compressor with a soft knee,
// modeled on the WebAudio DynamicsCompressorNode curve.
type Compressor struct {
	threshold  float64 // dB
	ratio      float64
	knee       float64 // dB
	attack     float64 // seconds
	release    float64 // seconds
	makeupGain float64 // dB

	envelope    float64
	attackCoef  float64
	releaseCoef float64
}

// NewCompressor creates a compressor with 6 dB knee, 3 ms attack and
// 250 ms release.
func NewCompressor(sampleRate int, thresholdDB, ratio float64) *Compressor {
	c := &Compressor{
		threshold: clamp(thresholdDB, -60, 0),
		ratio:     clamp(ratio, 1, 20),
		knee:      6,
		attack:    0.003,
		release:   0.25,
	}
	sr := float64(sampleRate)
	c.attackCoef = math.Exp(-1 / (c.attack * sr))
	c.releaseCoef = math.Exp(-1 / (c.release * sr))
	return c
}

func linearToDB(v float64) float64 {
	if v <= 0 {
		return -120
	}
	return 20 * math.Log10(v)
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// gainReductionDB computes the reduction for an input level in dB.
func (c *Compressor) gainReductionDB(inputDB float64) float64 {
	slope := 1 - 1/c.ratio
	if c.knee <= 0 {
		if inputDB <= c.threshold {
			return 0
		}
		return (c.threshold - inputDB) * slope
	}
	half := c.knee / 2
	switch {
	case inputDB <= c.threshold-half:
		return 0
	case inputDB >= c.threshold+half:
		return (c.threshold - inputDB) * slope
	default:
		x := (inputDB - (c.threshold - half)) / c.knee
		return -x * x * slope * half
	}
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	level := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
	if level > c.envelope {
		c.envelope = c.attackCoef*c.envelope + (1-c.attackCoef)*level
	} else {
		c.envelope = c.releaseCoef*c.envelope + (1-c.releaseCoef)*level
	}
	gain := float32(dbToLinear(c.gainReductionDB(linearToDB(c.envelope)) + c.makeupGain))
	return l * gain, r * gain
}

func (c *Compressor) Reset() {
	c.envelope = 0
}

// GainReduction returns the current reduction in dB, for metering.
func (c *Compressor) GainReduction() float64 {
	return -c.gainReductionDB(linearToDB(c.envelope))
}
