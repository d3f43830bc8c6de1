package core

// Payload is the JSON document returned by the update route
type Payload struct {
	WorldMap  string `json:"world_map"`
	WorldMap2 string `json:"world_map2"`
	WorldMap3 string `json:"world_map3"`

	NDVICategories []string  `json:"graph1AXA"`
	NDVIValues     []float64 `json:"graph1AYA"`

	LSTCategories []string  `json:"graph1AX"`
	LSTValues     []float64 `json:"graph1AY"`
}

// Maps returns the three map renderings in region order
func (p Payload) Maps() [3]string {
	return [3]string{p.WorldMap, p.WorldMap2, p.WorldMap3}
}

// NDVI returns the vegetation index series
func (p Payload) NDVI() Series {
	return Series{Categories: p.NDVICategories, Values: p.NDVIValues}
}

// LST returns the land surface temperature series
func (p Payload) LST() Series {
	return Series{Categories: p.LSTCategories, Values: p.LSTValues}
}
