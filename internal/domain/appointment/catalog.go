package appointment

// SlotCatalog is the externally supplied list of bookable date/time
// combinations per doctor and department. The lifecycle store only
// consults it; it never mutates it.
type SlotCatalog interface {
	// Offers reports whether the given time is a published slot for the
	// doctor/department on that date.
	Offers(departmentID, doctorID, date, tm string) bool
	// Times lists the published slot times for that date.
	Times(departmentID, doctorID, date string) []string
}

// DefaultSlotTimes is the clinic's published half-hour grid.
func DefaultSlotTimes() []string {
	return []string{
		"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
		"12:00", "12:30", "13:00", "13:30", "14:00", "14:30",
		"15:00", "15:30", "16:00", "16:30",
	}
}

// StaticCatalog publishes a fixed slot grid, with optional per-doctor
// overrides. It is safe for concurrent reads after setup.
type StaticCatalog struct {
	defaults []string
	byDoctor map[string][]string
}

// NewStaticCatalog creates a catalog from the given grid, or the default
// grid when none is given.
func NewStaticCatalog(times ...string) *StaticCatalog {
	if len(times) == 0 {
		times = DefaultSlotTimes()
	}
	return &StaticCatalog{defaults: times, byDoctor: make(map[string][]string)}
}

// SetDoctorTimes overrides the published grid for one doctor. Call
// during setup, before the catalog is shared.
func (c *StaticCatalog) SetDoctorTimes(doctorID string, times []string) {
	c.byDoctor[doctorID] = times
}

func (c *StaticCatalog) Offers(_, doctorID, _, tm string) bool {
	for _, t := range c.times(doctorID) {
		if t == tm {
			return true
		}
	}
	return false
}

func (c *StaticCatalog) Times(_, doctorID, _ string) []string {
	src := c.times(doctorID)
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func (c *StaticCatalog) times(doctorID string) []string {
	if t, ok := c.byDoctor[doctorID]; ok {
		return t
	}
	return c.defaults
}
