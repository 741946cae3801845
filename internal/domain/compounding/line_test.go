package compounding

import (
	"errors"
	"reflect"
	"testing"
)

func TestCheckLine_Infeasible(t *testing.T) {
	f := DefaultFormulary()
	line := PreparationLine{DrugKey: "prop", Feasible: false}
	if got := CheckLine(f, line); got != MissingReason {
		t.Errorf("expected missing_reason, got %s", got)
	}
	line.Reason = "   "
	if got := CheckLine(f, line); got != MissingReason {
		t.Errorf("blank reason should not count, got %s", got)
	}
	line.Reason = "rupture de stock"
	if got := CheckLine(f, line); got != Ready {
		t.Errorf("expected ready, got %s", got)
	}
}

func TestCheckLine_Incomplete(t *testing.T) {
	f := DefaultFormulary()
	line := PreparationLine{DrugKey: "prop", Feasible: true, TargetDoseMg: fptr(10)}
	if got := CheckLine(f, line); got != Incomplete {
		t.Errorf("expected incomplete, got %s", got)
	}
}

func TestCheckLine_BicarbonateLots(t *testing.T) {
	f := DefaultFormulary()
	line := PreparationLine{DrugKey: "bicarb", Feasible: true, TargetDoseMg: fptr(600), TotalUnits: iptr(270)}

	if got := CheckLine(f, line); got != Ready {
		t.Errorf("default lots should be valid, got %s", got)
	}

	line.Lots = []int{100, 100, 60}
	if got := CheckLine(f, line); got != LotSumMismatch {
		t.Errorf("expected lot_sum_mismatch, got %s", got)
	}

	line.Lots = []int{100, 100, 70}
	if got := CheckLine(f, line); got != Ready {
		t.Errorf("expected ready after fixing lots, got %s", got)
	}

	line.Lots = []int{}
	if got := CheckLine(f, line); got != LotSumMismatch {
		t.Errorf("all lots removed should mismatch, got %s", got)
	}

	line.Lots = []int{300, -30}
	if got := CheckLine(f, line); got != NegativeLot {
		t.Errorf("expected negative_lot even when the sum matches, got %s", got)
	}

	line.Lots = []int{270, 0}
	if got := CheckLine(f, line); got != Ready {
		t.Errorf("an empty lot is allowed, got %s", got)
	}
}

func TestFinalize_NegativeLot(t *testing.T) {
	f := DefaultFormulary()
	line := PreparationLine{DrugKey: "bicarb", Feasible: true, TargetDoseMg: fptr(250), TotalUnits: iptr(100), Lots: []int{150, -50}}
	if _, err := Finalize(f, line); !errors.Is(err, ErrLineNotReady) {
		t.Fatalf("expected ErrLineNotReady, got %v", err)
	}
}

func TestFinalize_Tablet(t *testing.T) {
	f := DefaultFormulary()
	line := tabletLine("prop", 7, 30)
	line.DurationDays = 30
	d, err := Finalize(f, line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != StatusOK || d.Molecule != "Propranolol" || d.Kind != KindTablet {
		t.Errorf("unexpected header %+v", d)
	}
	if d.Tablets == nil || *d.Tablets != 5.25 {
		t.Errorf("expected 5.25 tablets, got %v", d.Tablets)
	}
	if d.TotalMassG != nil {
		t.Error("tablet lines carry no powder mass")
	}
	if d.RealDoseMg != 7 || d.Units != 30 || d.Capsule != "T4" || d.DurationDays != 30 {
		t.Errorf("unexpected detail %+v", d)
	}
}

func TestFinalize_Bicarbonate(t *testing.T) {
	f := DefaultFormulary()
	line := PreparationLine{DrugKey: "bicarb", Feasible: true, TargetDoseMg: fptr(600), TotalUnits: iptr(270), CapsuleKey: "T0"}
	d, err := Finalize(f, line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.TotalMassG == nil || *d.TotalMassG != 54 {
		t.Errorf("expected 54 g, got %v", d.TotalMassG)
	}
	if !reflect.DeepEqual(d.Lots, []int{90, 90, 90}) {
		t.Errorf("expected balanced lots, got %v", d.Lots)
	}
	if d.RealDoseMg != 200 {
		t.Errorf("expected 200 mg per capsule, got %v", d.RealDoseMg)
	}
	if d.Tablets != nil {
		t.Error("powder lines carry no tablet count")
	}
}

func TestFinalize_Infeasible(t *testing.T) {
	f := DefaultFormulary()
	d, err := Finalize(f, PreparationLine{DrugKey: "amlo", Reason: " pas de matière première "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != StatusKO || d.Reason != "pas de matière première" || d.Molecule != "Amlodipine" {
		t.Errorf("unexpected detail %+v", d)
	}
	if d.Units != 0 || d.Tablets != nil {
		t.Error("infeasible lines carry no quantities")
	}
}

func TestFinalize_NotReady(t *testing.T) {
	f := DefaultFormulary()
	_, err := Finalize(f, PreparationLine{DrugKey: "prop", Feasible: true})
	if !errors.Is(err, ErrLineNotReady) {
		t.Fatalf("expected ErrLineNotReady, got %v", err)
	}
}
