package appointment

import "testing"

func TestStaticCatalogDefaults(t *testing.T) {
	c := NewStaticCatalog()

	if !c.Offers("cardiology", "doctor-1", "2026-04-10", "09:00") {
		t.Error("09:00 should be on the default grid")
	}
	if !c.Offers("cardiology", "doctor-1", "2026-04-10", "16:30") {
		t.Error("16:30 should be on the default grid")
	}
	if c.Offers("cardiology", "doctor-1", "2026-04-10", "08:30") {
		t.Error("08:30 is before the grid opens")
	}
	if c.Offers("cardiology", "doctor-1", "2026-04-10", "09:15") {
		t.Error("09:15 is off the half-hour grid")
	}

	if got := len(c.Times("cardiology", "doctor-1", "2026-04-10")); got != 16 {
		t.Errorf("default grid has %d slots, want 16", got)
	}
}

func TestStaticCatalogDoctorOverride(t *testing.T) {
	c := NewStaticCatalog()
	c.SetDoctorTimes("doctor-2", []string{"10:00", "10:30"})

	if c.Offers("", "doctor-2", "2026-04-10", "09:00") {
		t.Error("override should hide the default grid")
	}
	if !c.Offers("", "doctor-2", "2026-04-10", "10:30") {
		t.Error("override slot missing")
	}
	// Other doctors keep the defaults.
	if !c.Offers("", "doctor-1", "2026-04-10", "09:00") {
		t.Error("default grid lost for non-overridden doctor")
	}
}

func TestStaticCatalogTimesReturnsCopy(t *testing.T) {
	c := NewStaticCatalog("09:00", "09:30")
	times := c.Times("", "doctor-1", "2026-04-10")
	times[0] = "mutated"

	if got := c.Times("", "doctor-1", "2026-04-10"); got[0] != "09:00" {
		t.Error("mutating the returned slice leaked into the catalog")
	}
}
