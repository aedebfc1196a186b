package prop

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/pion/dcamera/pkg/frame"
)

// Video describes one end of a stream: what a camera produces or what a
// remote consumer wants to receive.
type Video struct {
	Width, Height int
	FrameRate     float32
	FrameFormat   frame.Format
	Codec         frame.Codec
}

func (p Video) String() string {
	return fmt.Sprintf("%dx%d@%gfps %s/%s", p.Width, p.Height, p.FrameRate, p.FrameFormat, p.Codec)
}

// Validate checks that p can be used to build a pipeline.
func (p Video) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("prop: invalid resolution %dx%d", p.Width, p.Height)
	}
	if p.FrameRate < 0 {
		return fmt.Errorf("prop: negative frame rate %g", p.FrameRate)
	}
	return nil
}

// Merge merges all the field values from o to p, except zero values.
func (p *Video) Merge(o Video) {
	rp := reflect.ValueOf(p).Elem()
	ro := reflect.ValueOf(o)

	numFields := rp.NumField()
	for i := 0; i < numFields; i++ {
		fieldB := ro.Field(i)
		if fieldB.IsZero() {
			continue
		}
		rp.Field(i).Set(fieldB)
	}
}

// FitnessDistance is an implementation for https://w3c.github.io/mediacapture-main/#dfn-fitness-distance
// where p is the ideal and o the candidate. Zero-valued fields in p are
// treated as "don't care".
func (p Video) FitnessDistance(o Video) float64 {
	var cmps comparisons
	if p.Width != 0 {
		cmps.add(o.Width, p.Width)
	}
	if p.Height != 0 {
		cmps.add(o.Height, p.Height)
	}
	if p.FrameRate != 0 {
		cmps.add(o.FrameRate, p.FrameRate)
	}
	if p.FrameFormat != "" {
		cmps.add(o.FrameFormat, p.FrameFormat)
	}
	return cmps.fitnessDistance()
}

type comparison struct {
	actual, ideal string
}

type comparisons []comparison

func (c *comparisons) add(actual, ideal interface{}) {
	*c = append(*c, comparison{fmt.Sprint(actual), fmt.Sprint(ideal)})
}

func (c comparisons) fitnessDistance() float64 {
	var dist float64

	for _, cmp := range c {
		if cmp.actual == cmp.ideal {
			continue
		}

		actualF, err1 := strconv.ParseFloat(cmp.actual, 64)
		idealF, err2 := strconv.ParseFloat(cmp.ideal, 64)

		switch {
		// If both of the values are numeric, we need to normalize the values to get the distance
		case err1 == nil && err2 == nil:
			dist += math.Abs(actualF-idealF) / math.Max(math.Abs(actualF), math.Abs(idealF))
		// Otherwise the only comparison value is either 0 (matched) or 1 (not matched)
		default:
			dist++
		}
	}

	return dist
}

// SelectBest returns the candidate with the smallest fitness distance to
// ideal. It returns false when candidates is empty.
func SelectBest(ideal Video, candidates []Video) (Video, bool) {
	var best Video
	found := false
	minDist := math.Inf(1)

	for _, c := range candidates {
		dist := ideal.FitnessDistance(c)
		if dist < minDist {
			minDist = dist
			best = c
			found = true
		}
	}
	return best, found
}
