package ops

// Capacity resources the KPI reads by name, with the defaults reported when
// a resource is absent from the snapshot.
const (
	ResourceBeds   = "Beds"
	ResourceICU    = "ICU"
	ResourceOxygen = "O₂ Cylinders"

	defaultTotalBeds       = 100
	defaultICUBeds         = 20
	defaultOxygenCylinders = 60
)

// DeriveKPI computes the dashboard summary from the current patient, staff,
// and resource snapshots. It returns nil while patients and resources are
// both empty, which callers treat as "not yet computed".
//
// AvailableDoctors counts every staff member with the Doctor role regardless
// of shift. That matches the dashboard's historical behavior even though the
// field name suggests on-shift filtering; see DESIGN.md before changing it.
func DeriveKPI(patients []Patient, staff []Staff, resources []Resource) *DashboardKPI {
	if len(patients) == 0 && len(resources) == 0 {
		return nil
	}

	kpi := &DashboardKPI{
		TotalBeds:       defaultTotalBeds,
		ICUBeds:         defaultICUBeds,
		OxygenCylinders: defaultOxygenCylinders,
	}

	for _, p := range patients {
		if p.Status.Active() {
			kpi.TotalPatients++
		}
	}

	for _, r := range resources {
		switch r.Name {
		case ResourceBeds:
			kpi.BedOccupancy = r.Used
			kpi.TotalBeds = r.Total
		case ResourceICU:
			kpi.ICUUsage = r.Used
			kpi.ICUBeds = r.Total
		case ResourceOxygen:
			kpi.OxygenConsumption = r.Used
			kpi.OxygenCylinders = r.Total
		}
	}

	for _, s := range staff {
		if s.Role == RoleDoctor {
			kpi.AvailableDoctors++
		}
	}

	return kpi
}
