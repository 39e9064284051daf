package convert

// Hardware light-type buckets. The hardware exposes five discrete colour
// temperature presets; the numeric labels are the wire values it accepts
// in the lightType command key.
const (
	lightTypeCoolest = 2
	lightTypeCool    = 4
	lightTypeNeutral = 1
	lightTypeWarm    = 5
	lightTypeWarmest = 3
)

// Kelvin thresholds for bucket selection, coolest first. A requested
// temperature selects the first bucket whose threshold it reaches.
var lightTypeThresholds = []struct {
	minKelvin int
	lightType int
}{
	{4700, lightTypeCoolest},
	{4100, lightTypeCool},
	{3500, lightTypeNeutral},
	{2850, lightTypeWarm},
}

// Representative Kelvin value per bucket, used when converting hardware
// state back into a colour temperature.
var lightTypeKelvin = map[int]int{
	lightTypeCoolest: 5000,
	lightTypeCool:    4400,
	lightTypeNeutral: 3800,
	lightTypeWarm:    3200,
	lightTypeWarmest: 2500,
}

// LightTypeForKelvin maps a requested colour temperature to the nearest
// hardware bucket. Anything below the warm threshold lands in the warmest
// bucket.
func LightTypeForKelvin(kelvin int) int {
	for _, t := range lightTypeThresholds {
		if kelvin >= t.minKelvin {
			return t.lightType
		}
	}
	return lightTypeWarmest
}

// KelvinForLightType maps a hardware bucket back to its representative
// colour temperature. Unknown buckets report the neutral temperature.
func KelvinForLightType(lightType int) int {
	if k, ok := lightTypeKelvin[lightType]; ok {
		return k
	}
	return lightTypeKelvin[lightTypeNeutral]
}
