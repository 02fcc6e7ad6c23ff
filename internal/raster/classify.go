package raster

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/config"
)

// Layer names with built-in classifications.
const (
	LayerRuggedness = "ruggedness"
	LayerWheat      = "wheat"
)

// Band assigns Class to values at or above Min (strictly above when
// Exclusive).
type Band struct {
	Min       float64
	Exclusive bool
	Class     int
}

// Classifier maps raw cell values to classes. Bands are tested from the
// highest threshold down; values matching none are class 0 and dropped.
type Classifier struct {
	Layer string
	Bands []Band
}

// Ruggedness classes terrain ruggedness index values.
var Ruggedness = Classifier{Layer: LayerRuggedness, Bands: []Band{
	{Min: 350000, Exclusive: true, Class: 4},
	{Min: 150000, Exclusive: true, Class: 3},
	{Min: 80000, Class: 2},
}}

// Wheat classes wheat suitability values.
var Wheat = Classifier{Layer: LayerWheat, Bands: []Band{
	{Min: 7000, Class: 3},
	{Min: 3500, Class: 2},
	{Min: 1000, Class: 1},
}}

// Classify returns the class of v, 0 for NaN or values below every band.
func (c Classifier) Classify(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	for _, b := range c.Bands {
		if v > b.Min || (!b.Exclusive && v == b.Min) {
			return b.Class
		}
	}
	return 0
}

// ClassifierFor returns the classifier of a layer; configured bands replace
// the built-in ones.
func ClassifierFor(layer string, overrides map[string][]config.Band) (Classifier, error) {
	if bands, ok := overrides[layer]; ok && len(bands) > 0 {
		c := Classifier{Layer: layer}
		for _, b := range bands {
			if b.Class <= 0 {
				return Classifier{}, eris.Errorf("raster: class for %s band %v must be > 0", layer, b.Min)
			}
			c.Bands = append(c.Bands, Band{Min: b.Min, Exclusive: b.Exclusive, Class: b.Class})
		}
		sort.SliceStable(c.Bands, func(i, j int) bool { return c.Bands[i].Min > c.Bands[j].Min })
		return c, nil
	}
	switch layer {
	case LayerRuggedness:
		return Ruggedness, nil
	case LayerWheat:
		return Wheat, nil
	}
	return Classifier{}, eris.Errorf("raster: no classification for layer %q", layer)
}
