package main

import (
	"fmt"
	"math"
)

// Parameter names read by the aviation model
const (
	ParamCAGRShortRange            = "cagr_passenger_short_range"
	ParamCAGRMediumRange           = "cagr_passenger_medium_range"
	ParamCAGRLongRange             = "cagr_passenger_long_range"
	ParamCAGRFreight               = "cagr_freight"
	ParamLoadFactorEndYear         = "load_factor_end_year"
	ParamDropinGainShortRange      = "energy_per_ask_short_range_dropin_fuel_gain"
	ParamDropinGainMediumRange     = "energy_per_ask_medium_range_dropin_fuel_gain"
	ParamDropinGainLongRange       = "energy_per_ask_long_range_dropin_fuel_gain"
	ParamFleetRenewalDuration      = "fleet_renewal_duration"
	ParamHydrogenShareShortRange   = "hydrogen_final_market_share_short_range"
	ParamHydrogenIntroShortRange   = "hydrogen_introduction_year_short_range"
	ParamOperationsFinalGain       = "operations_final_gain"
	ParamOperationsStartYear       = "operations_start_year"
	ParamOperationsDuration        = "operations_duration"
	ParamBiofuelShare              = "biofuel_share"
	ParamElectrofuelShare          = "electrofuel_share"
	ParamElectricityEmissionFactor = "electricity_emission_factor"
	ParamOffsetBaselineLevel       = "carbon_offset_baseline_level_vs_2019"
	ParamResidualOffsetShare       = "residual_carbon_offset_share"
	ParamNetCarbonBudget           = "net_carbon_budget"
	ParamCarbonDioxideRemoval      = "carbon_dioxyde_removal_2100"
	ParamAvailableElectricity      = "available_electricity"
	ParamWasteBiomass              = "waste_biomass"
	ParamCropsBiomass              = "crops_biomass"
	ParamForestResiduesBiomass     = "forest_residues_biomass"
	ParamAgriculturalBiomass       = "agricultural_residues_biomass"
	ParamAlgaeBiomass              = "algae_biomass"
	ParamCarbonBudgetShare         = "aviation_carbon_budget_allocated_share"
	ParamEquivalentBudgetShare     = "aviation_equivalent_carbon_budget_allocated_share"
	ParamBiomassShare              = "aviation_biomass_allocated_share"
	ParamElectricityShare          = "aviation_electricity_allocated_share"
)

// ModelParameters lists every parameter the aviation model requires
var ModelParameters = []string{
	ParamCAGRShortRange, ParamCAGRMediumRange, ParamCAGRLongRange, ParamCAGRFreight,
	ParamLoadFactorEndYear,
	ParamDropinGainShortRange, ParamDropinGainMediumRange, ParamDropinGainLongRange,
	ParamFleetRenewalDuration, ParamHydrogenShareShortRange, ParamHydrogenIntroShortRange,
	ParamOperationsFinalGain, ParamOperationsStartYear, ParamOperationsDuration,
	ParamBiofuelShare, ParamElectrofuelShare, ParamElectricityEmissionFactor,
	ParamOffsetBaselineLevel, ParamResidualOffsetShare,
	ParamNetCarbonBudget, ParamCarbonDioxideRemoval, ParamAvailableElectricity,
	ParamWasteBiomass, ParamCropsBiomass, ParamForestResiduesBiomass, ParamAgriculturalBiomass, ParamAlgaeBiomass,
	ParamCarbonBudgetShare, ParamEquivalentBudgetShare, ParamBiomassShare, ParamElectricityShare,
}

// Reference values for the base year of the prospective period
const (
	co2Emissions2019     = 1030.0 // Mt CO2
	loadFactor2019       = 82.4   // %
	keroseneCombustionEF = 73.2   // gCO2/MJ, tank to wake
	keroseneLifecycleEF  = 88.7   // gCO2/MJ, well to wake
	biofuelLifecycleEF   = 25.0   // gCO2/MJ
	electrofuelYield     = 0.5    // MJ fuel per MJ electricity
	biofuelYield         = 0.5    // MJ fuel per MJ biomass
	hydrogenYield        = 0.6    // MJ hydrogen per MJ electricity
	hydrogenEnergyRatio  = 1.1    // hydrogen aircraft energy per ASK vs drop-in
	historicGrowth       = 1.045  // yearly traffic growth before the base year
	historicEfficiency   = 0.98   // yearly fleet energy intensity change before the base year
	nonCO2Multiplier     = 1.7    // CO2-equivalent of non-CO2 effects per unit of drop-in fuel emissions
	tcre                 = 0.00045
)

// segment is one traffic market of the model
type segment struct {
	name         string
	rpkColumn    string
	traffic2019  float64 // billion RPK, or billion RTK for freight
	co2Share2019 float64
	cagrParam    string
	gainParam    string
	hydrogen     bool
}

var segments = []segment{
	{"short_range", "rpk_short_range", 1500, 0.17, ParamCAGRShortRange, ParamDropinGainShortRange, true},
	{"medium_range", "rpk_medium_range", 3300, 0.33, ParamCAGRMediumRange, ParamDropinGainMediumRange, false},
	{"long_range", "rpk_long_range", 3800, 0.38, ParamCAGRLongRange, ParamDropinGainLongRange, false},
	{"freight", "rtk", 260, 0.12, ParamCAGRFreight, ParamDropinGainMediumRange, false},
}

// AviationModel is a deterministic aviation CO2 and resource model. It
// decomposes emissions into demand, aircraft efficiency, operations and
// energy effects so each lever family shows as its own wedge.
type AviationModel struct {
	StartYear    int
	BoundaryYear int
	EndYear      int
}

// DefaultAviationModel covers 2000-2050 with 2019 as the last historic year
func DefaultAviationModel() *AviationModel {
	return &AviationModel{StartYear: 2000, BoundaryYear: 2019, EndYear: 2050}
}

// modelInputs is the parameter set resolved and checked once per run
type modelInputs struct {
	cagr                 map[string]PiecewiseValue
	gain                 map[string]float64
	loadFactorEnd        float64
	renewal              float64
	hydrogenShare        float64
	hydrogenIntro        float64
	opsGain              float64
	opsStart             float64
	opsDuration          float64
	biofuel, electrofuel PiecewiseValue
	electricityEF        PiecewiseValue
	offsetBaseline       PiecewiseValue
	residualOffset       PiecewiseValue
	scalars              map[string]float64
}

func (m *AviationModel) resolve(params Parameters) (*modelInputs, error) {
	for _, name := range ModelParameters {
		if _, err := params.Lookup(name); err != nil {
			return nil, err
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	in := &modelInputs{
		cagr:    make(map[string]PiecewiseValue),
		gain:    make(map[string]float64),
		scalars: make(map[string]float64),
	}
	for _, name := range params.Names() {
		if v := params[name]; v.IsScalar() {
			in.scalars[name] = v.Values[0]
		}
	}
	scalar := func(name string) (float64, error) {
		v, ok := in.scalars[name]
		if !ok {
			return 0, fmt.Errorf("parameter %q must be a single value", name)
		}
		return v, nil
	}

	for _, seg := range segments {
		in.cagr[seg.cagrParam] = params[seg.cagrParam]
		for _, v := range params[seg.cagrParam].Values {
			if v <= -100 {
				return nil, fmt.Errorf("parameter %q: growth rate %.1f%% is not possible", seg.cagrParam, v)
			}
		}
		g, err := scalar(seg.gainParam)
		if err != nil {
			return nil, err
		}
		if g < 0 || g >= 100 {
			return nil, fmt.Errorf("parameter %q: efficiency gain must be in [0, 100)", seg.gainParam)
		}
		in.gain[seg.gainParam] = g
	}

	var err error
	if in.loadFactorEnd, err = scalar(ParamLoadFactorEndYear); err != nil {
		return nil, err
	}
	if in.loadFactorEnd <= 0 || in.loadFactorEnd > 100 {
		return nil, fmt.Errorf("parameter %q: load factor must be in (0, 100]", ParamLoadFactorEndYear)
	}
	if in.renewal, err = scalar(ParamFleetRenewalDuration); err != nil {
		return nil, err
	}
	if in.renewal <= 0 {
		return nil, fmt.Errorf("parameter %q must be positive", ParamFleetRenewalDuration)
	}
	if in.hydrogenShare, err = scalar(ParamHydrogenShareShortRange); err != nil {
		return nil, err
	}
	if in.hydrogenIntro, err = scalar(ParamHydrogenIntroShortRange); err != nil {
		return nil, err
	}
	if in.opsGain, err = scalar(ParamOperationsFinalGain); err != nil {
		return nil, err
	}
	if in.opsStart, err = scalar(ParamOperationsStartYear); err != nil {
		return nil, err
	}
	if in.opsDuration, err = scalar(ParamOperationsDuration); err != nil {
		return nil, err
	}
	if in.opsDuration <= 0 {
		return nil, fmt.Errorf("parameter %q must be positive", ParamOperationsDuration)
	}

	in.biofuel = params[ParamBiofuelShare]
	in.electrofuel = params[ParamElectrofuelShare]
	in.electricityEF = params[ParamElectricityEmissionFactor]
	in.offsetBaseline = params[ParamOffsetBaselineLevel]
	in.residualOffset = params[ParamResidualOffsetShare]

	for _, name := range []string{ParamHydrogenShareShortRange, ParamOperationsFinalGain} {
		if v := in.scalars[name]; v < 0 || v > 100 {
			return nil, fmt.Errorf("parameter %q: share must be in [0, 100]", name)
		}
	}
	for _, name := range []string{ParamBiofuelShare, ParamElectrofuelShare, ParamResidualOffsetShare} {
		for _, v := range params[name].Values {
			if v < 0 || v > 100 {
				return nil, fmt.Errorf("parameter %q: share %.1f%% must be in [0, 100]", name, v)
			}
		}
	}
	for year := m.BoundaryYear; year <= m.EndYear; year++ {
		if total := in.biofuel.At(year) + in.electrofuel.At(year); total > 100+1e-9 {
			return nil, fmt.Errorf("alternative fuels make up %.1f%% of the drop-in fuel mix in %d", total, year)
		}
	}
	for _, name := range []string{
		ParamNetCarbonBudget, ParamCarbonDioxideRemoval, ParamAvailableElectricity,
		ParamWasteBiomass, ParamCropsBiomass, ParamForestResiduesBiomass, ParamAgriculturalBiomass, ParamAlgaeBiomass,
		ParamCarbonBudgetShare, ParamEquivalentBudgetShare, ParamBiomassShare, ParamElectricityShare,
	} {
		if _, err := scalar(name); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// logistic is an S-curve reaching final at start+duration, half way at the midpoint
func logistic(year, final, start, duration float64) float64 {
	mid := start + duration/2
	return final / (1 + math.Exp(-(year-mid)*8/duration))
}

// Run simulates every year and fills a result bundle
func (m *AviationModel) Run(params Parameters) (*ResultBundle, error) {
	if m.StartYear >= m.BoundaryYear || m.BoundaryYear >= m.EndYear {
		return nil, fmt.Errorf("invalid model years %d/%d/%d", m.StartYear, m.BoundaryYear, m.EndYear)
	}
	in, err := m.resolve(params)
	if err != nil {
		return nil, err
	}

	var full, historic, prospective []int
	for year := m.StartYear; year <= m.EndYear; year++ {
		full = append(full, year)
		if year <= m.BoundaryYear {
			historic = append(historic, year)
		}
		if year >= m.BoundaryYear {
			prospective = append(prospective, year)
		}
	}
	n := len(full)
	col := func() []float64 { return make([]float64, n) }

	rpk := make(map[string][]float64, len(segments))
	for _, seg := range segments {
		rpk[seg.rpkColumn] = col()
	}
	var (
		totalRPK       = col()
		loadFactor     = col()
		hydrogenShare  = col()
		biofuelShare   = col()
		efuelShare     = col()
		baseline3      = col()
		tech2019       = col()
		withEfficiency = col()
		withLoadFactor = col()
		withEnergy     = col()
		offset         = col()
		netEmissions   = col()
		cumulative     = col()
		energy         = col()
		energyDropin   = col()
		energyHydrogen = col()
		biomass        = col()
		electricity    = col()
		equivalent     = col()
		cumulativeEq   = col()
		temperature    = col()
	)

	trafficIndex := make(map[string]float64, len(segments))
	for _, seg := range segments {
		trafficIndex[seg.name] = 1
	}
	cumCO2, cumEq, cumEqSinceStart := 0.0, 0.0, 0.0

	// Run simulation year by year
	for i, year := range full {
		offsetFromBase := float64(year - m.BoundaryYear)
		emissions2019Tech, emissionsEff, h2Energy := 0.0, 0.0, 0.0

		if year <= m.BoundaryYear {
			// Stylised history: traffic growth partly offset by fleet efficiency
			histTraffic := math.Pow(historicGrowth, offsetFromBase)
			histIntensity := math.Pow(historicEfficiency, offsetFromBase)
			for _, seg := range segments {
				rpk[seg.rpkColumn][i] = seg.traffic2019 * histTraffic
				e := co2Emissions2019 * seg.co2Share2019 * histTraffic * histIntensity
				emissions2019Tech += e
				emissionsEff += e
			}
			baseline3[i] = emissions2019Tech
			tech2019[i] = emissions2019Tech
			withEfficiency[i] = emissionsEff
			withLoadFactor[i] = emissionsEff
			withEnergy[i] = emissionsEff
			loadFactor[i] = loadFactor2019
		} else {
			for _, seg := range segments {
				trafficIndex[seg.name] *= 1 + in.cagr[seg.cagrParam].At(year)/100
				rpk[seg.rpkColumn][i] = seg.traffic2019 * trafficIndex[seg.name]

				base := co2Emissions2019 * seg.co2Share2019 * trafficIndex[seg.name]
				emissions2019Tech += base

				fleet := m.fleetIntensity(year, in.gain[seg.gainParam], in.renewal)
				share := 0.0
				if seg.hydrogen {
					share = logistic(float64(year), in.hydrogenShare, in.hydrogenIntro, in.renewal) / 100
					if float64(year) < in.hydrogenIntro {
						share = 0
					}
					hydrogenShare[i] = share * 100
				}
				emissionsEff += base * fleet * (1 - share)
				// Hydrogen traffic burns no drop-in fuel; its energy is counted separately
				h2Energy += base * fleet * share * hydrogenEnergyRatio / keroseneCombustionEF
			}
			baseline3[i] = co2Emissions2019 * math.Pow(1.03, offsetFromBase)
			tech2019[i] = emissions2019Tech
			withEfficiency[i] = emissionsEff

			span := float64(m.EndYear - m.BoundaryYear)
			loadFactor[i] = loadFactor2019 + (in.loadFactorEnd-loadFactor2019)*offsetFromBase/span
			opsFactor := 1 - logistic(float64(year), in.opsGain, in.opsStart, in.opsDuration)/100
			if float64(year) < in.opsStart {
				opsFactor = 1
			}
			withLoadFactor[i] = emissionsEff * loadFactor2019 / loadFactor[i] * opsFactor
			h2Energy *= loadFactor2019 / loadFactor[i] * opsFactor

			bio := in.biofuel.At(year) / 100
			efuel := in.electrofuel.At(year) / 100
			efuelEF := in.electricityEF.At(year) / 3.6 / electrofuelYield
			energyFactor := (bio*biofuelLifecycleEF + efuel*efuelEF + (1-bio-efuel)*keroseneLifecycleEF) / keroseneLifecycleEF
			withEnergy[i] = withLoadFactor[i] * energyFactor
			biofuelShare[i] = bio * 100
			efuelShare[i] = efuel * 100
		}

		energyDropin[i] = withLoadFactor[i] / keroseneCombustionEF
		energyHydrogen[i] = h2Energy
		energy[i] = energyDropin[i] + energyHydrogen[i]
		biomass[i] = energyDropin[i] * biofuelShare[i] / 100 / biofuelYield
		electricity[i] = energyDropin[i]*efuelShare[i]/100/electrofuelYield + energyHydrogen[i]/hydrogenYield

		if year > m.BoundaryYear {
			baselineLevel := in.offsetBaseline.At(year) / 100 * co2Emissions2019
			residual := withEnergy[i] * in.residualOffset.At(year) / 100
			offset[i] = math.Min(withEnergy[i], math.Max(0, withEnergy[i]-baselineLevel)+residual)
		}
		netEmissions[i] = withEnergy[i] - offset[i]
		equivalent[i] = netEmissions[i] + nonCO2Multiplier*withLoadFactor[i]

		cumEqSinceStart += equivalent[i] / 1000
		if year > m.BoundaryYear {
			cumCO2 += netEmissions[i] / 1000
			cumEq += equivalent[i] / 1000
		}
		cumulative[i] = cumCO2
		cumulativeEq[i] = cumEq
		temperature[i] = tcre * cumEqSinceStart

		for _, seg := range segments {
			if seg.rpkColumn != "rtk" {
				totalRPK[i] += rpk[seg.rpkColumn][i]
			}
		}
	}

	vector := NewTable(full)
	for column, values := range rpk {
		vector.Set(column, values)
	}
	vector.Set("rpk", totalRPK)
	vector.Set("load_factor", loadFactor)
	vector.Set("hydrogen_share_short_range", hydrogenShare)
	vector.Set("biofuel_share", biofuelShare)
	vector.Set("electrofuel_share", efuelShare)
	vector.Set("co2_emissions_2019technology_baseline3", baseline3)
	vector.Set("co2_emissions_2019technology", tech2019)
	vector.Set("co2_emissions_including_aircraft_efficiency", withEfficiency)
	vector.Set("co2_emissions_including_load_factor", withLoadFactor)
	vector.Set("co2_emissions_including_energy", withEnergy)
	vector.Set("carbon_offset", offset)
	vector.Set("cumulative_co2_emissions", cumulative)
	vector.Set("energy_consumption", energy)
	vector.Set("energy_consumption_dropin_fuel", energyDropin)
	vector.Set("energy_consumption_hydrogen", energyHydrogen)
	vector.Set("biomass_consumption", biomass)
	vector.Set("electricity_consumption", electricity)

	climate := NewTable(full)
	climate.Set("co2_emissions", append([]float64(nil), withEnergy...))
	climate.Set("net_co2_emissions", netEmissions)
	climate.Set("total_equivalent_emissions", equivalent)
	climate.Set("cumulative_total_equivalent_emissions", cumulativeEq)
	climate.Set("temperature_increase_from_aviation", temperature)

	s := in.scalars
	gross := s[ParamNetCarbonBudget] + s[ParamCarbonDioxideRemoval]
	biomassTotal := s[ParamWasteBiomass] + s[ParamCropsBiomass] + s[ParamForestResiduesBiomass] +
		s[ParamAgriculturalBiomass] + s[ParamAlgaeBiomass]
	last := n - 1
	floatOutputs := map[string]float64{
		"gross_carbon_budget_2050":            gross,
		"equivalent_gross_carbon_budget_2050": gross,
		"aviation_carbon_budget":              gross * s[ParamCarbonBudgetShare] / 100,
		"aviation_equivalent_carbon_budget":   gross * s[ParamEquivalentBudgetShare] / 100,
		"available_biomass_total":             biomassTotal,
		"aviation_available_biomass":          biomassTotal * s[ParamBiomassShare] / 100,
		"aviation_available_electricity":      s[ParamAvailableElectricity] * s[ParamElectricityShare] / 100,
		"biomass_consumption_end_year":        biomass[last],
		"electricity_consumption_end_year":    electricity[last],
		"cumulative_co2_emissions_2050":       cumulative[last],
		"co2_emissions_2050":                  withEnergy[last],
		"co2_emissions_reduction_2050":        (1 - netEmissions[last]/co2Emissions2019) * 100,
	}

	return &ResultBundle{
		VectorOutputs:  vector,
		ClimateOutputs: climate,
		FloatOutputs:   floatOutputs,
		FloatInputs:    cloneFloatMap(in.scalars),
		Years: map[string][]int{
			FullYears:        full,
			HistoricYears:    historic,
			ProspectiveYears: prospective,
		},
	}, nil
}

// fleetIntensity is the fleet-average energy per ASK relative to the base
// year: new aircraft improve by gain% a year and replace the fleet over the
// renewal duration.
func (m *AviationModel) fleetIntensity(year int, gain, renewal float64) float64 {
	window := int(math.Max(1, math.Round(renewal)))
	total := 0.0
	for k := 0; k < window; k++ {
		vintage := year - k
		age := float64(vintage - m.BoundaryYear)
		if age < 0 {
			age = 0
		}
		total += math.Pow(1-gain/100, age)
	}
	return total / float64(window)
}
