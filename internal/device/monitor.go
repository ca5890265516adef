package device

import "sort"

// Monitor diffs successive device snapshots so the app can log and announce
// devices appearing or vanishing. Enumeration itself is the server's job; we
// only poll the client's view on a schedule.
type Monitor struct {
	devices func() []Device

	known map[string]int // name -> count (duplicate names are possible)
}

func NewMonitor(devices func() []Device) *Monitor {
	return &Monitor{devices: devices, known: map[string]int{}}
}

// Poll returns the device names added and removed since the previous call.
// The first call reports every present device as added.
func (m *Monitor) Poll() (added, removed []string) {
	current := map[string]int{}
	for _, d := range m.devices() {
		current[d.Name()]++
	}

	for name, n := range current {
		for i := m.known[name]; i < n; i++ {
			added = append(added, name)
		}
	}
	for name, n := range m.known {
		for i := current[name]; i < n; i++ {
			removed = append(removed, name)
		}
	}

	m.known = current
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
