package compounding

import (
	"sort"
)

// DrugKind selects the calculation branch for a drug.
type DrugKind string

const (
	KindTablet DrugKind = "tablet"
	KindPowder DrugKind = "powder"
)

// Drug is formulary master data. It never changes at runtime.
type Drug struct {
	Key            string   `json:"key"`
	Name           string   `json:"name"`
	SourceUnitMg   float64  `json:"source_unit_mg"`
	SecabilityStep float64  `json:"secability_step"`
	Kind           DrugKind `json:"kind"`
	// CapsuleCapacityMg caps the active content of a single capsule. A
	// non-zero value puts the powder in capsule-split and lot mode.
	CapsuleCapacityMg float64 `json:"capsule_capacity_mg,omitempty"`
}

// IsBatchSplit reports whether the drug goes through the lot splitter.
func (d Drug) IsBatchSplit() bool {
	return d.Kind == KindPowder && d.CapsuleCapacityMg > 0
}

// CapsuleSize is a capsule shell with its internal fill volume.
type CapsuleSize struct {
	Key          string  `json:"key"`
	Label        string  `json:"label"`
	FillVolumeMl float64 `json:"fill_volume_ml"`
}

// Formulary holds the drug and capsule reference tables.
type Formulary struct {
	drugs    map[string]Drug
	capsules map[string]CapsuleSize
}

// NewFormulary builds a formulary from explicit tables.
func NewFormulary(drugs []Drug, capsules []CapsuleSize) *Formulary {
	f := &Formulary{
		drugs:    make(map[string]Drug, len(drugs)),
		capsules: make(map[string]CapsuleSize, len(capsules)),
	}
	for _, d := range drugs {
		f.drugs[d.Key] = d
	}
	for _, c := range capsules {
		f.capsules[c.Key] = c
	}
	return f
}

// Drug looks up a drug by key.
func (f *Formulary) Drug(key string) (Drug, bool) {
	d, ok := f.drugs[key]
	return d, ok
}

// Capsule looks up a capsule size by key.
func (f *Formulary) Capsule(key string) (CapsuleSize, bool) {
	c, ok := f.capsules[key]
	return c, ok
}

// Drugs returns all drugs ordered by key.
func (f *Formulary) Drugs() []Drug {
	out := make([]Drug, 0, len(f.drugs))
	for _, d := range f.drugs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Capsules returns all capsule sizes, largest shell first.
func (f *Formulary) Capsules() []CapsuleSize {
	out := make([]CapsuleSize, 0, len(f.capsules))
	for _, c := range f.capsules {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DefaultCapsuleKey is used when a line does not name a capsule.
const DefaultCapsuleKey = "T4"

// DefaultFormulary returns the pharmacy's built-in reference tables.
func DefaultFormulary() *Formulary {
	return NewFormulary(defaultDrugs, defaultCapsules)
}

var defaultDrugs = []Drug{
	{Key: "amox", Name: "Amoxicilline", SourceUnitMg: 500, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "prop", Name: "Propranolol", SourceUnitMg: 40, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "furo", Name: "Furosémide", SourceUnitMg: 40, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "spiro", Name: "Spironolactone", SourceUnitMg: 25, SecabilityStep: 1.0, Kind: KindTablet},
	{Key: "captopril", Name: "Captopril", SourceUnitMg: 25, SecabilityStep: 0.25, Kind: KindTablet},
	{Key: "amlo", Name: "Amlodipine", SourceUnitMg: 5, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "hydro", Name: "Hydrochlorothiazide", SourceUnitMg: 25, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "aten100", Name: "Aténolol 100mg", SourceUnitMg: 100, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "carv25", Name: "Carvédilol 25mg", SourceUnitMg: 25, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "carv12", Name: "Carvédilol 12.5mg", SourceUnitMg: 12.5, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "carv6", Name: "Carvédilol 6.25mg", SourceUnitMg: 6.25, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "carv3", Name: "Carvédilol 3.125mg", SourceUnitMg: 3.125, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "biso10", Name: "Bisoprolol 10mg", SourceUnitMg: 10, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "biso5", Name: "Bisoprolol 5mg", SourceUnitMg: 5, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "val80", Name: "Valsartan 80mg", SourceUnitMg: 80, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "val160", Name: "Valsartan 160mg", SourceUnitMg: 160, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "val320", Name: "Valsartan 320mg", SourceUnitMg: 320, SecabilityStep: 0.5, Kind: KindTablet},
	{Key: "bicarb", Name: "Bicarbonate de Sodium", SourceUnitMg: 1, SecabilityStep: 0, Kind: KindPowder, CapsuleCapacityMg: 250},
}

var defaultCapsules = []CapsuleSize{
	{Key: "T0", Label: "Taille 0", FillVolumeMl: 0.68},
	{Key: "T1", Label: "Taille 1", FillVolumeMl: 0.50},
	{Key: "T2", Label: "Taille 2", FillVolumeMl: 0.37},
	{Key: "T3", Label: "Taille 3", FillVolumeMl: 0.30},
	{Key: "T4", Label: "Taille 4", FillVolumeMl: 0.21},
}

// Preparators is the roster of pharmacists who sign preparations.
var Preparators = []string{
	"Dr Hellali Djaafar Hamza",
	"Dr Slimatni Souad",
	"Dr Bourouba Saoucen",
	"Dr Moussaoui Meriem",
	"Dr Amirouche Nada",
	"Dr Mokhtari Fatma zahra",
	"Dr Tirichine Amina",
}

// PreparationLine is one formulation of a visit as entered by the operator.
// Nil pointers mean the field has not been filled in yet.
type PreparationLine struct {
	DrugKey           string   `json:"drug_key"`
	Feasible          bool     `json:"feasible"`
	TargetDoseMg      *float64 `json:"target_dose_mg,omitempty"`
	TotalUnits        *int     `json:"total_units,omitempty"`
	CapsuleKey        string   `json:"capsule_key"`
	ForcedTabletCount *float64 `json:"forced_tablet_count,omitempty"`
	FrequencyPerDay   *int     `json:"frequency_per_day,omitempty"`
	DurationDays      int      `json:"duration_days"`
	Reason            string   `json:"reason,omitempty"`
	Lots              []int    `json:"lots,omitempty"`
}

// ResultKind tags which variant of Result is populated.
type ResultKind string

const (
	ResultPowder      ResultKind = "powder"
	ResultBicarbonate ResultKind = "bicarbonate"
	ResultTablet      ResultKind = "tablet"
)

// Result is the outcome of a ready calculation. Exactly one of Powder,
// Bicarbonate or Tablet is set, matching Kind.
type Result struct {
	Kind         ResultKind         `json:"kind"`
	CapsuleLabel string             `json:"capsule_label"`
	Powder       *PowderResult      `json:"powder,omitempty"`
	Bicarbonate  *BicarbonateResult `json:"bicarbonate,omitempty"`
	Tablet       *TabletResult      `json:"tablet,omitempty"`
}

// RealDoseMg is the per-unit dose actually delivered, whatever the branch.
func (r Result) RealDoseMg() float64 {
	switch r.Kind {
	case ResultPowder:
		return r.Powder.RealDoseMg
	case ResultBicarbonate:
		return r.Bicarbonate.ContentPerCapsuleMg
	case ResultTablet:
		return r.Tablet.RealDoseMg
	}
	return 0
}

type PowderResult struct {
	TotalMassG        float64 `json:"total_mass_g"`
	ExcipientVolumeMl float64 `json:"excipient_volume_ml"`
	RealDoseMg        float64 `json:"real_dose_mg"`
}

type BicarbonateResult struct {
	CapsulesPerIntake      int     `json:"capsules_per_intake"`
	ContentPerCapsuleMg    float64 `json:"content_per_capsule_mg"`
	FillVolumePerCapsuleMl float64 `json:"fill_volume_per_capsule_ml"`
}

type TabletResult struct {
	ExactTablets      float64        `json:"exact_tablets"`
	FinalTablets      float64        `json:"final_tablets"`
	RealDoseMg        float64        `json:"real_dose_mg"`
	ExcipientVolumeMl float64        `json:"excipient_volume_ml"`
	DiffPercent       float64        `json:"diff_percent"`
	Options           []TabletOption `json:"options"`
}

// TabletOption is one secability-compatible tablet count around the exact need.
type TabletOption struct {
	Tablets       float64 `json:"tablets"`
	DosePerUnitMg float64 `json:"dose_per_unit_mg"`
	DiffPercent   float64 `json:"diff_percent"`
}

// Status is the feasibility flag as recorded in history.
type Status string

const (
	StatusOK Status = "ok"
	StatusKO Status = "ko"
)

// PreparationDetail is the finalized snapshot of a line kept in patient history.
type PreparationDetail struct {
	DrugKey      string   `json:"drug_key"`
	Molecule     string   `json:"molecule"`
	Status       Status   `json:"status"`
	Kind         DrugKind `json:"kind,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	TargetDoseMg float64  `json:"target_dose_mg,omitempty"`
	RealDoseMg   float64  `json:"real_dose_mg,omitempty"`
	Tablets      *float64 `json:"tablets,omitempty"`
	TotalMassG   *float64 `json:"total_mass_g,omitempty"`
	Units        int      `json:"units,omitempty"`
	Capsule      string   `json:"capsule,omitempty"`
	DurationDays int      `json:"duration_days,omitempty"`
	Lots         []int    `json:"lots,omitempty"`
}
