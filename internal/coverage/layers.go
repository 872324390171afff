package coverage

// The coverage service publishes a closed set of layer families. Each layer
// carries its band schema, native grid resolution and value semantics, so
// downstream stages select behavior from the layer instead of branching on
// names.

// Family groups layers sharing band schema and derivation.
type Family string

const (
	FamilyRadar   Family = "radar"   // dual-pol backscatter, 2 bands
	FamilyOptical Family = "optical" // surface reflectance, 10 bands
	FamilyWeather Family = "weather" // daily point/area grids, 1 band
)

// Layer describes one remote coverage.
type Layer struct {
	// ID is the coverage identifier on the service.
	ID string
	// Family selects band schema and derivation downstream.
	Family Family
	// Short tags the layer in file names and summary rows (S1_asc, S2, ...).
	Short string
	// Bands in source order. Band order is preserved through assembly.
	Bands []string
	// CellSize is the native grid resolution in metres.
	CellSize float64
	// DayStart is the time-of-day anchor of a daily slice. Most coverages
	// slice at midnight; the mean-temperature coverage starts at noon.
	DayStart string
	// Scale divides raw sample values into physical units (10 for the
	// temperature coverages, which store tenths of a degree).
	Scale float64
	// NoData is the source sentinel for empty pixels.
	NoData float64
}

var (
	RadarAscending = Layer{
		ID:       "codede_gamma0XascXs1gg_irregular",
		Family:   FamilyRadar,
		Short:    "S1_asc",
		Bands:    []string{"VH", "VV"},
		CellSize: 10,
		DayStart: "00:00:00.000Z",
		Scale:    1,
	}
	RadarDescending = Layer{
		ID:       "codede_gamma0XdescXs1gg_irregular",
		Family:   FamilyRadar,
		Short:    "S1_desc",
		Bands:    []string{"VH", "VV"},
		CellSize: 10,
		DayStart: "00:00:00.000Z",
		Scale:    1,
	}
	OpticalReflectance = Layer{
		ID:       "codede_reflectanceXboaXs2gg_irregular",
		Family:   FamilyOptical,
		Short:    "S2",
		Bands:    []string{"B02", "B03", "B04", "B05", "B06", "B07", "B08", "B8A", "B11", "B12"},
		CellSize: 10,
		DayStart: "00:00:00.000Z",
		Scale:    1,
	}

	WeatherPrecipitation = Layer{
		ID:       "dwd_precipitation_daily",
		Family:   FamilyWeather,
		Short:    "precip",
		Bands:    []string{"precip"},
		CellSize: 1000,
		DayStart: "00:00:00.000Z",
		Scale:    1,
	}
	WeatherTempMean = Layer{
		ID:       "dwd_temperatureXaverage_daily",
		Family:   FamilyWeather,
		Short:    "temp_mean",
		Bands:    []string{"temp"},
		CellSize: 1000,
		DayStart: "12:00:00.000Z",
		Scale:    10,
	}
	WeatherTempMin = Layer{
		ID:       "dwd_temperatureXminimum_daily",
		Family:   FamilyWeather,
		Short:    "temp_min",
		Bands:    []string{"temp"},
		CellSize: 1000,
		DayStart: "00:00:00.000Z",
		Scale:    10,
	}
	WeatherTempMax = Layer{
		ID:       "dwd_temperatureXmaximum_daily",
		Family:   FamilyWeather,
		Short:    "temp_max",
		Bands:    []string{"temp"},
		CellSize: 1000,
		DayStart: "00:00:00.000Z",
		Scale:    10,
	}
)

// RadarLayers returns the radar layers matching an orbit selection
// ("asc", "desc" or "both").
func RadarLayers(orbit string) []Layer {
	switch orbit {
	case "asc":
		return []Layer{RadarAscending}
	case "desc":
		return []Layer{RadarDescending}
	default:
		return []Layer{RadarAscending, RadarDescending}
	}
}

// WeatherLayers returns the four daily weather coverages in the fixed order
// the output table uses.
func WeatherLayers() []Layer {
	return []Layer{WeatherPrecipitation, WeatherTempMean, WeatherTempMin, WeatherTempMax}
}
