package compounding

import (
	"errors"
	"fmt"
	"strings"
)

// Readiness says whether a line may be saved and, if not, why.
type Readiness int

const (
	Ready Readiness = iota
	// Incomplete: the calculator has no result yet.
	Incomplete
	// LotSumMismatch: bicarbonate lots do not add up to the unit count.
	LotSumMismatch
	// MissingReason: an infeasible line without its mandatory reason.
	MissingReason
	// NegativeLot: a bicarbonate lot holds fewer than zero units.
	NegativeLot
)

func (r Readiness) String() string {
	switch r {
	case Ready:
		return "ready"
	case Incomplete:
		return "incomplete"
	case LotSumMismatch:
		return "lot_sum_mismatch"
	case MissingReason:
		return "missing_reason"
	case NegativeLot:
		return "negative_lot"
	}
	return fmt.Sprintf("readiness(%d)", int(r))
}

func (r Readiness) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ErrLineNotReady is returned by Finalize for a line that cannot be saved.
var ErrLineNotReady = errors.New("preparation line is not ready")

// EffectiveLots returns the lots a bicarbonate line is produced in. A line
// that never had its lots edited uses the balanced default.
func EffectiveLots(line PreparationLine) []int {
	if line.Lots != nil {
		return line.Lots
	}
	if line.TotalUnits == nil {
		return nil
	}
	return DefaultLots(*line.TotalUnits)
}

// CheckLine evaluates the save gate of a line.
func CheckLine(f *Formulary, line PreparationLine) Readiness {
	if !line.Feasible {
		if strings.TrimSpace(line.Reason) == "" {
			return MissingReason
		}
		return Ready
	}
	res, ok := Calculate(f, line)
	if !ok {
		return Incomplete
	}
	if res.Kind != ResultBicarbonate {
		return Ready
	}
	lots := EffectiveLots(line)
	if !LotsNonNegative(lots) {
		return NegativeLot
	}
	if !LotsMatch(lots, *line.TotalUnits) {
		return LotSumMismatch
	}
	return Ready
}

// Finalize turns a ready line into the snapshot stored in patient history.
func Finalize(f *Formulary, line PreparationLine) (PreparationDetail, error) {
	if r := CheckLine(f, line); r != Ready {
		return PreparationDetail{}, fmt.Errorf("%w: %s", ErrLineNotReady, r)
	}

	detail := PreparationDetail{
		DrugKey:      line.DrugKey,
		DurationDays: line.DurationDays,
	}
	if drug, ok := f.Drug(line.DrugKey); ok {
		detail.Molecule = drug.Name
		detail.Kind = drug.Kind
	}

	if !line.Feasible {
		detail.Status = StatusKO
		detail.Reason = strings.TrimSpace(line.Reason)
		return detail, nil
	}

	res, _ := Calculate(f, line)
	detail.Status = StatusOK
	detail.TargetDoseMg = *line.TargetDoseMg
	detail.RealDoseMg = round(res.RealDoseMg(), 2)
	detail.Units = *line.TotalUnits
	detail.Capsule = capsuleKey(line)

	switch res.Kind {
	case ResultTablet:
		tabs := round(res.Tablet.FinalTablets, 2)
		detail.Tablets = &tabs
	case ResultPowder:
		mass := round(res.Powder.TotalMassG, 2)
		detail.TotalMassG = &mass
	case ResultBicarbonate:
		lots := EffectiveLots(line)
		total := 0.0
		for _, m := range LotMasses(res.Bicarbonate.ContentPerCapsuleMg, lots) {
			total += m
		}
		total = round(total, 4)
		detail.TotalMassG = &total
		detail.Lots = append([]int(nil), lots...)
	}
	return detail, nil
}
