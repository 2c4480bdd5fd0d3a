package ops

import "fmt"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Insight is one operational recommendation card.
type Insight struct {
	Title          string   `json:"title"`
	Value          string   `json:"value"`
	Period         string   `json:"period"`
	Current        string   `json:"current"`
	Recommendation string   `json:"recommendation"`
	Severity       Severity `json:"severity"`
}

// Severity thresholds, all strictly-greater comparisons: a value sitting
// exactly on a boundary takes the lower severity (85% bed utilization is a
// warning, 86% is critical).
const (
	bedCriticalPct    = 85
	bedWarningPct     = 70
	oxygenCriticalPct = 80
	oxygenWarningPct  = 60
	staffCriticalPPD  = 10 // active patients per doctor
	staffWarningPPD   = 6
	icuLoadWarning    = 15 // ICU patient count
)

// GenerateInsights produces the four fixed recommendation cards (bed
// capacity, oxygen, staffing, patient load) from current state. Pure; safe
// to call on every snapshot.
func GenerateInsights(patients []Patient, staff []Staff, resources []Resource) []Insight {
	return []Insight{
		bedInsight(resources),
		oxygenInsight(resources),
		staffingInsight(patients, staff),
		patientLoadInsight(patients),
	}
}

func findResource(resources []Resource, name string, defTotal int) Resource {
	for _, r := range resources {
		if r.Name == name {
			return r
		}
	}
	return Resource{Name: name, Used: 0, Total: defTotal}
}

func bedInsight(resources []Resource) Insight {
	beds := findResource(resources, ResourceBeds, defaultTotalBeds)
	util := beds.Utilization()

	in := Insight{
		Title:   "Bed Forecast",
		Value:   fmt.Sprintf("%.0f%% utilization", util),
		Period:  "Next 7 days",
		Current: fmt.Sprintf("%d / %d occupied", beds.Used, beds.Total),
	}
	switch {
	case util > bedCriticalPct:
		in.Severity = SeverityCritical
		in.Recommendation = fmt.Sprintf("Only %d beds free. Consider temporary ward expansion and early discharge review.", beds.Total-beds.Used)
	case util > bedWarningPct:
		in.Severity = SeverityWarning
		in.Recommendation = fmt.Sprintf("Prepare %d additional beds. Consider temporary ward expansion.", beds.Used-beds.Total*bedWarningPct/100)
	default:
		in.Severity = SeverityInfo
		in.Recommendation = "Bed capacity is within normal range."
	}
	return in
}

func oxygenInsight(resources []Resource) Insight {
	oxy := findResource(resources, ResourceOxygen, defaultOxygenCylinders)
	util := oxy.Utilization()

	in := Insight{
		Title:   "Oxygen Cylinder Demand",
		Value:   fmt.Sprintf("%d cylinders in use", oxy.Used),
		Period:  "Next 7 days",
		Current: fmt.Sprintf("%d / %d in use", oxy.Used, oxy.Total),
	}
	switch {
	case util > oxygenCriticalPct:
		in.Severity = SeverityCritical
		in.Recommendation = fmt.Sprintf("Order %d additional cylinders immediately. Respiratory cases trending up.", oxy.Total/2)
	case util > oxygenWarningPct:
		in.Severity = SeverityWarning
		in.Recommendation = "Review cylinder stock and place a replenishment order this week."
	default:
		in.Severity = SeverityInfo
		in.Recommendation = "Oxygen supply is within normal range."
	}
	return in
}

func staffingInsight(patients []Patient, staff []Staff) Insight {
	var active, doctors, nurses int
	for _, p := range patients {
		if p.Status.Active() {
			active++
		}
	}
	for _, s := range staff {
		switch s.Role {
		case RoleDoctor:
			doctors++
		case RoleNurse:
			nurses++
		}
	}

	in := Insight{
		Title:   "Staff Requirement",
		Period:  "Next 7 days",
		Current: fmt.Sprintf("%d doctors, %d nurses on roster", doctors, nurses),
	}

	// Patients-per-doctor ratio; no doctors with active patients is the
	// worst case.
	switch {
	case doctors == 0 && active > 0:
		in.Value = "No doctors on roster"
		in.Severity = SeverityCritical
		in.Recommendation = "Assign on-call doctors immediately. No physician coverage for active patients."
	case doctors > 0 && active > doctors*staffCriticalPPD:
		in.Value = fmt.Sprintf("%d patients per doctor", active/doctors)
		in.Severity = SeverityCritical
		in.Recommendation = "Call in additional doctors. Patient load far exceeds safe coverage."
	case doctors > 0 && active > doctors*staffWarningPPD:
		in.Value = fmt.Sprintf("%d patients per doctor", active/doctors)
		in.Severity = SeverityWarning
		in.Recommendation = "Schedule additional staff for upcoming shifts."
	default:
		in.Value = "Coverage adequate"
		in.Severity = SeverityInfo
		in.Recommendation = "Current staffing covers the patient load."
	}
	return in
}

func patientLoadInsight(patients []Patient) Insight {
	var icu int
	for _, p := range patients {
		if p.Status == StatusICU {
			icu++
		}
	}

	in := Insight{
		Title:   "Patient Load Projection",
		Value:   fmt.Sprintf("%d ICU patients", icu),
		Period:  "Next 14 days",
		Current: fmt.Sprintf("%d patients in ICU", icu),
	}
	if icu > icuLoadWarning {
		in.Severity = SeverityWarning
		in.Recommendation = "ICU load is elevated. Activate contingency protocols."
	} else {
		in.Severity = SeverityInfo
		in.Recommendation = "ICU load is within normal range."
	}
	return in
}
