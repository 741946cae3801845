package compounding

import (
	"math"
)

// stepEpsilon absorbs float noise when testing whether a tablet count is
// already a multiple of the secability step (e.g. 2.9999999 halves).
const stepEpsilon = 1e-9

// Calculate converts a preparation line into manufacturing quantities. The
// second return value is false while the line is incomplete: no drug or
// capsule, infeasible, a missing/non-positive dose or unit count, or a pinned
// tablet count that is not a positive number.
func Calculate(f *Formulary, line PreparationLine) (Result, bool) {
	if line.DrugKey == "" || !line.Feasible {
		return Result{}, false
	}
	drug, ok := f.Drug(line.DrugKey)
	if !ok {
		return Result{}, false
	}
	capsule, ok := f.Capsule(capsuleKey(line))
	if !ok {
		return Result{}, false
	}
	if line.TargetDoseMg == nil || line.TotalUnits == nil {
		return Result{}, false
	}
	dose := *line.TargetDoseMg
	units := *line.TotalUnits
	if math.IsNaN(dose) || math.IsInf(dose, 0) || dose <= 0 || units <= 0 {
		return Result{}, false
	}

	switch {
	case drug.IsBatchSplit():
		perIntake := CapsulesPerIntake(drug, dose)
		return Result{
			Kind:         ResultBicarbonate,
			CapsuleLabel: capsule.Label,
			Bicarbonate: &BicarbonateResult{
				CapsulesPerIntake:      perIntake,
				ContentPerCapsuleMg:    dose / float64(perIntake),
				FillVolumePerCapsuleMl: capsule.FillVolumeMl,
			},
		}, true

	case drug.Kind == KindPowder:
		return Result{
			Kind:         ResultPowder,
			CapsuleLabel: capsule.Label,
			Powder: &PowderResult{
				TotalMassG:        dose * float64(units) / 1000,
				ExcipientVolumeMl: float64(units) * capsule.FillVolumeMl,
				RealDoseMg:        dose,
			},
		}, true

	default:
		if pin := line.ForcedTabletCount; pin != nil && (math.IsNaN(*pin) || math.IsInf(*pin, 0) || *pin <= 0) {
			return Result{}, false
		}
		return Result{
			Kind:         ResultTablet,
			CapsuleLabel: capsule.Label,
			Tablet:       calculateTablets(drug, capsule, dose, units, line.ForcedTabletCount),
		}, true
	}
}

func calculateTablets(drug Drug, capsule CapsuleSize, dose float64, units int, forced *float64) *TabletResult {
	n := float64(units)
	exact := dose * n / drug.SourceUnitMg

	final := exact
	if forced != nil {
		final = *forced
	}
	realDose := final * drug.SourceUnitMg / n

	lower, upper := TabletBounds(exact, drug.SecabilityStep)
	counts := []float64{lower}
	if upper != lower {
		counts = append(counts, upper)
	}
	options := make([]TabletOption, 0, len(counts))
	for _, tabs := range counts {
		optDose := tabs * drug.SourceUnitMg / n
		options = append(options, TabletOption{
			Tablets:       tabs,
			DosePerUnitMg: optDose,
			DiffPercent:   deviation(optDose, dose),
		})
	}

	return &TabletResult{
		ExactTablets:      exact,
		FinalTablets:      final,
		RealDoseMg:        realDose,
		ExcipientVolumeMl: n * capsule.FillVolumeMl,
		DiffPercent:       deviation(realDose, dose),
		Options:           options,
	}
}

// TabletBounds returns the closest usable tablet counts below and above
// exact for the given secability step. Both are equal when exact is already
// a multiple of step, or when the drug has no step.
func TabletBounds(exact, step float64) (lower, upper float64) {
	if step <= 0 {
		return exact, exact
	}
	lower = math.Floor(exact/step+stepEpsilon) * step
	if math.Abs(exact-lower) <= stepEpsilon*math.Max(1, exact) {
		return lower, lower
	}
	return lower, lower + step
}

// CapsulesPerIntake splits a dose over as many capsules as the drug's
// per-capsule capacity requires. Drugs without a capacity use one capsule.
func CapsulesPerIntake(drug Drug, doseMg float64) int {
	if drug.CapsuleCapacityMg <= 0 || doseMg <= drug.CapsuleCapacityMg {
		return 1
	}
	return int(math.Ceil(doseMg / drug.CapsuleCapacityMg))
}

// DeriveTotalUnits computes the capsule count of a treatment from its
// posology. It reports false until both frequency and duration are positive.
// For capacity-limited powders a missing dose counts as one capsule per intake.
func DeriveTotalUnits(f *Formulary, drugKey string, doseMg *float64, frequencyPerDay, durationDays int) (int, bool) {
	if frequencyPerDay <= 0 || durationDays <= 0 {
		return 0, false
	}
	total := frequencyPerDay * durationDays
	if drug, ok := f.Drug(drugKey); ok && drug.IsBatchSplit() {
		dose := 0.0
		if doseMg != nil {
			dose = *doseMg
		}
		total *= CapsulesPerIntake(drug, dose)
	}
	return total, true
}

// ResetsForcedTablets reports whether a pinned tablet count chosen for prev
// stops being meaningful for next. Callers clear their pin when it does.
func ResetsForcedTablets(prev, next PreparationLine) bool {
	return prev.DrugKey != next.DrugKey ||
		!sameFloat(prev.TargetDoseMg, next.TargetDoseMg) ||
		!sameInt(prev.TotalUnits, next.TotalUnits)
}

func deviation(actual, target float64) float64 {
	return (actual - target) / target * 100
}

func capsuleKey(line PreparationLine) string {
	if line.CapsuleKey == "" {
		return DefaultCapsuleKey
	}
	return line.CapsuleKey
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
