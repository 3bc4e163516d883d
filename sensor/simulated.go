package sensor

import "math/rand"

// Tables of plausible values used when the node runs without real sensors.
var (
	SimulatedCO2         = []uint16{1400, 1350, 1360, 1280, 1250, 1300, 1450}
	SimulatedTemperature = []int16{320, 345, 366, 389, 335, 368, 353, 360, 400, 320}
	SimulatedOzone       = []uint16{100, 650, 45, 1200, 950, 800, 300} // ppm × 1000
	SimulatedBattery     = []uint8{15, 14, 12, 10, 8, 7, 3, 1}
)

// Simulator picks random entries from the simulated tables. It implements
// every sensor interface of this package.
type Simulator struct {
	rnd *rand.Rand
}

func NewSimulator(seed int64) *Simulator {
	return &Simulator{rnd: rand.New(rand.NewSource(seed))}
}

func (s *Simulator) CO2() (uint16, error) {
	return SimulatedCO2[s.rnd.Intn(len(SimulatedCO2))], nil
}

func (s *Simulator) Temperature() (int16, error) {
	return SimulatedTemperature[s.rnd.Intn(len(SimulatedTemperature))], nil
}

func (s *Simulator) OzonePPM() (float64, error) {
	return float64(SimulatedOzone[s.rnd.Intn(len(SimulatedOzone))]) / 1000, nil
}

func (s *Simulator) BatteryPercent() (uint8, error) {
	return SimulatedBattery[s.rnd.Intn(len(SimulatedBattery))], nil
}

// Simulated returns a station where every quantity is simulated.
func Simulated(seed int64) Station {
	sim := NewSimulator(seed)
	return Station{CO2: sim, Temperature: sim, Ozone: sim, Battery: sim}
}
