package compounding

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func tabletLine(drug string, dose float64, units int) PreparationLine {
	return PreparationLine{
		DrugKey:      drug,
		Feasible:     true,
		TargetDoseMg: fptr(dose),
		TotalUnits:   iptr(units),
		CapsuleKey:   "T4",
	}
}

func TestCalculate_TabletExactMultiple(t *testing.T) {
	f := DefaultFormulary()
	res, ok := Calculate(f, tabletLine("spiro", 75, 30))
	if !ok {
		t.Fatal("expected a result")
	}
	if res.Kind != ResultTablet {
		t.Fatalf("expected tablet result, got %s", res.Kind)
	}
	tab := res.Tablet
	if tab.ExactTablets != 90 {
		t.Errorf("expected 90 exact tablets, got %v", tab.ExactTablets)
	}
	if len(tab.Options) != 1 || tab.Options[0].Tablets != 90 {
		t.Errorf("expected single option [90], got %+v", tab.Options)
	}
	if tab.RealDoseMg != 75 {
		t.Errorf("expected real dose 75, got %v", tab.RealDoseMg)
	}
	if tab.DiffPercent != 0 {
		t.Errorf("expected 0%% deviation, got %v", tab.DiffPercent)
	}
	if !approx(tab.ExcipientVolumeMl, 30*0.21) {
		t.Errorf("expected excipient volume %v, got %v", 30*0.21, tab.ExcipientVolumeMl)
	}
	if res.CapsuleLabel != "Taille 4" {
		t.Errorf("expected capsule label Taille 4, got %s", res.CapsuleLabel)
	}
}

func TestCalculate_TabletOptimizerPair(t *testing.T) {
	f := DefaultFormulary()
	res, ok := Calculate(f, tabletLine("prop", 7, 30))
	if !ok {
		t.Fatal("expected a result")
	}
	tab := res.Tablet
	if !approx(tab.ExactTablets, 5.25) {
		t.Fatalf("expected 5.25 exact tablets, got %v", tab.ExactTablets)
	}
	if len(tab.Options) != 2 {
		t.Fatalf("expected two options, got %+v", tab.Options)
	}
	low, high := tab.Options[0], tab.Options[1]
	if low.Tablets != 5 || high.Tablets != 5.5 {
		t.Errorf("expected options 5 and 5.5, got %v and %v", low.Tablets, high.Tablets)
	}
	if !approx(low.DosePerUnitMg, 200.0/30) {
		t.Errorf("unexpected low dose %v", low.DosePerUnitMg)
	}
	if low.DiffPercent >= 0 || high.DiffPercent <= 0 {
		t.Errorf("expected low under target and high over target, got %v and %v", low.DiffPercent, high.DiffPercent)
	}
	if !approx(tab.RealDoseMg, 7) || !approx(tab.DiffPercent, 0) {
		t.Errorf("unforced result should hit the exact dose, got %v (%v%%)", tab.RealDoseMg, tab.DiffPercent)
	}
}

func TestCalculate_TabletForcedCount(t *testing.T) {
	f := DefaultFormulary()
	line := tabletLine("prop", 7, 30)
	line.ForcedTabletCount = fptr(5.5)
	res, ok := Calculate(f, line)
	if !ok {
		t.Fatal("expected a result")
	}
	if res.Tablet.FinalTablets != 5.5 {
		t.Errorf("expected forced 5.5 tablets, got %v", res.Tablet.FinalTablets)
	}
	if !approx(res.Tablet.RealDoseMg, 220.0/30) {
		t.Errorf("expected real dose %v, got %v", 220.0/30, res.Tablet.RealDoseMg)
	}
	if !approx(res.Tablet.DiffPercent, (220.0/30-7)/7*100) {
		t.Errorf("unexpected deviation %v", res.Tablet.DiffPercent)
	}
}

func TestCalculate_TabletForcedCountInvalid(t *testing.T) {
	f := DefaultFormulary()
	for _, forced := range []float64{-10, 0, math.NaN(), math.Inf(1)} {
		line := tabletLine("spiro", 75, 30)
		line.ForcedTabletCount = fptr(forced)
		if _, ok := Calculate(f, line); ok {
			t.Errorf("forced %v: expected no result", forced)
		}
		if got := CheckLine(f, line); got != Incomplete {
			t.Errorf("forced %v: expected incomplete, got %s", forced, got)
		}
		if _, err := Finalize(f, line); !errors.Is(err, ErrLineNotReady) {
			t.Errorf("forced %v: expected ErrLineNotReady, got %v", forced, err)
		}
	}
}

func TestCalculate_TabletBoundsProperty(t *testing.T) {
	f := DefaultFormulary()
	for _, drug := range f.Drugs() {
		if drug.Kind != KindTablet {
			continue
		}
		for dose := 0.5; dose <= 60; dose += 1.75 {
			for _, units := range []int{7, 14, 28, 30, 45, 60} {
				res, ok := Calculate(f, tabletLine(drug.Key, dose, units))
				if !ok {
					t.Fatalf("%s: expected result for dose %v units %d", drug.Key, dose, units)
				}
				exact := res.Tablet.ExactTablets
				lower, upper := TabletBounds(exact, drug.SecabilityStep)
				if lower > exact+1e-6 || upper < exact-1e-6 {
					t.Errorf("%s: bounds [%v,%v] do not bracket %v", drug.Key, lower, upper, exact)
				}
				if upper != lower && !approx(upper-lower, drug.SecabilityStep) {
					t.Errorf("%s: bound gap %v, want step %v", drug.Key, upper-lower, drug.SecabilityStep)
				}
			}
		}
	}
}

func TestCalculate_StandardPowder(t *testing.T) {
	f := NewFormulary(
		[]Drug{{Key: "caf", Name: "Caféine", Kind: KindPowder}},
		defaultCapsules,
	)
	line := PreparationLine{DrugKey: "caf", Feasible: true, TargetDoseMg: fptr(100), TotalUnits: iptr(30), CapsuleKey: "T1"}
	res, ok := Calculate(f, line)
	if !ok {
		t.Fatal("expected a result")
	}
	if res.Kind != ResultPowder {
		t.Fatalf("expected powder result, got %s", res.Kind)
	}
	if !approx(res.Powder.TotalMassG, 3) {
		t.Errorf("expected 3 g, got %v", res.Powder.TotalMassG)
	}
	if !approx(res.Powder.ExcipientVolumeMl, 15) {
		t.Errorf("expected 15 ml, got %v", res.Powder.ExcipientVolumeMl)
	}
	if res.Powder.RealDoseMg != 100 {
		t.Errorf("expected exact dose, got %v", res.Powder.RealDoseMg)
	}
}

func TestCalculate_BicarbonateSplit(t *testing.T) {
	f := DefaultFormulary()
	tests := []struct {
		dose      float64
		perIntake int
		content   float64
	}{
		{250, 1, 250},
		{100, 1, 100},
		{300, 2, 150},
		{600, 3, 200},
		{1000, 4, 250},
	}
	for _, tt := range tests {
		line := PreparationLine{DrugKey: "bicarb", Feasible: true, TargetDoseMg: fptr(tt.dose), TotalUnits: iptr(20), CapsuleKey: "T0"}
		res, ok := Calculate(f, line)
		if !ok {
			t.Fatalf("dose %v: expected a result", tt.dose)
		}
		b := res.Bicarbonate
		if b.CapsulesPerIntake != tt.perIntake {
			t.Errorf("dose %v: expected %d capsules per intake, got %d", tt.dose, tt.perIntake, b.CapsulesPerIntake)
		}
		if !approx(b.ContentPerCapsuleMg, tt.content) {
			t.Errorf("dose %v: expected %v mg per capsule, got %v", tt.dose, tt.content, b.ContentPerCapsuleMg)
		}
		if !approx(b.ContentPerCapsuleMg*float64(b.CapsulesPerIntake), tt.dose) {
			t.Errorf("dose %v: split does not reconstruct the dose", tt.dose)
		}
		if b.FillVolumePerCapsuleMl != 0.68 {
			t.Errorf("expected T0 fill volume, got %v", b.FillVolumePerCapsuleMl)
		}
	}
}

func TestCalculate_BicarbonateCapsuleCountProperty(t *testing.T) {
	drug, _ := DefaultFormulary().Drug("bicarb")
	for dose := 251.0; dose < 3000; dose += 37 {
		got := CapsulesPerIntake(drug, dose)
		if want := int(math.Ceil(dose / 250)); got != want {
			t.Errorf("dose %v: expected %d capsules, got %d", dose, want, got)
		}
	}
}

func TestCalculate_Incomplete(t *testing.T) {
	f := DefaultFormulary()
	tests := map[string]PreparationLine{
		"no drug":         {Feasible: true, TargetDoseMg: fptr(10), TotalUnits: iptr(10)},
		"unknown drug":    {DrugKey: "nope", Feasible: true, TargetDoseMg: fptr(10), TotalUnits: iptr(10)},
		"unknown capsule": {DrugKey: "prop", Feasible: true, TargetDoseMg: fptr(10), TotalUnits: iptr(10), CapsuleKey: "T9"},
		"infeasible":      {DrugKey: "prop", Feasible: false, TargetDoseMg: fptr(10), TotalUnits: iptr(10)},
		"missing dose":    {DrugKey: "prop", Feasible: true, TotalUnits: iptr(10)},
		"missing units":   {DrugKey: "prop", Feasible: true, TargetDoseMg: fptr(10)},
		"zero dose":       {DrugKey: "prop", Feasible: true, TargetDoseMg: fptr(0), TotalUnits: iptr(10)},
		"negative units":  {DrugKey: "prop", Feasible: true, TargetDoseMg: fptr(10), TotalUnits: iptr(-3)},
		"nan dose":        {DrugKey: "prop", Feasible: true, TargetDoseMg: fptr(math.NaN()), TotalUnits: iptr(10)},
	}
	for name, line := range tests {
		if _, ok := Calculate(f, line); ok {
			t.Errorf("%s: expected incomplete", name)
		}
	}
}

func TestCalculate_DefaultCapsule(t *testing.T) {
	line := tabletLine("prop", 10, 30)
	line.CapsuleKey = ""
	res, ok := Calculate(DefaultFormulary(), line)
	if !ok {
		t.Fatal("expected a result with the default capsule")
	}
	if res.CapsuleLabel != "Taille 4" {
		t.Errorf("expected default T4, got %s", res.CapsuleLabel)
	}
}

func TestCalculate_Idempotent(t *testing.T) {
	f := DefaultFormulary()
	lines := []PreparationLine{
		tabletLine("carv3", 1.2, 28),
		{DrugKey: "bicarb", Feasible: true, TargetDoseMg: fptr(600), TotalUnits: iptr(270)},
	}
	for _, line := range lines {
		a, okA := Calculate(f, line)
		b, okB := Calculate(f, line)
		if okA != okB || !reflect.DeepEqual(a, b) {
			t.Errorf("%s: results differ between calls", line.DrugKey)
		}
	}
}

func TestDeriveTotalUnits(t *testing.T) {
	f := DefaultFormulary()
	tests := []struct {
		name  string
		drug  string
		dose  *float64
		freq  int
		days  int
		want  int
		ready bool
	}{
		{"bicarb single capsule", "bicarb", fptr(250), 2, 10, 20, true},
		{"bicarb three capsules", "bicarb", fptr(600), 3, 30, 270, true},
		{"bicarb dose not entered", "bicarb", nil, 2, 10, 20, true},
		{"tablet", "spiro", fptr(75), 2, 15, 30, true},
		{"zero frequency", "spiro", fptr(75), 0, 15, 0, false},
		{"zero duration", "bicarb", fptr(600), 3, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := DeriveTotalUnits(f, tt.drug, tt.dose, tt.freq, tt.days)
		if ok != tt.ready || got != tt.want {
			t.Errorf("%s: expected (%d, %v), got (%d, %v)", tt.name, tt.want, tt.ready, got, ok)
		}
	}
}

func TestResetsForcedTablets(t *testing.T) {
	base := tabletLine("prop", 7, 30)
	base.ForcedTabletCount = fptr(5)

	same := base
	same.CapsuleKey = "T2"
	same.DurationDays = 15
	if ResetsForcedTablets(base, same) {
		t.Error("capsule or duration changes must keep the pin")
	}

	for name, mutate := range map[string]func(*PreparationLine){
		"drug":  func(l *PreparationLine) { l.DrugKey = "furo" },
		"dose":  func(l *PreparationLine) { l.TargetDoseMg = fptr(8) },
		"units": func(l *PreparationLine) { l.TotalUnits = iptr(60) },
		"clear": func(l *PreparationLine) { l.TotalUnits = nil },
	} {
		next := base
		mutate(&next)
		if !ResetsForcedTablets(base, next) {
			t.Errorf("%s change should reset the pin", name)
		}
	}
}
