package rules

// Builtin returns the compiled-in PAD and carotid coding-compliance catalog.
// Deployments can replace it with a YAML catalog via RULES_FILE.
func Builtin() *Catalog {
	c, err := NewCatalog(builtinRules)
	if err != nil {
		// The builtin set is validated by tests; a failure here is a
		// programming error.
		panic(err)
	}
	return c
}

var builtinRules = []Rule{
	{
		ID:           "PAD_001_SYMPTOM_CLASS",
		Name:         "PAD Symptom Classification Required",
		Description:  "Must document symptom classification for PAD procedures",
		Severity:     SeverityBlock,
		Requires:     []Requirement{{Fact: "pad_symptom_class"}},
		Message:      "PAD symptom classification not documented. Must specify: asymptomatic, claudication, rest pain, or tissue loss.",
		GuidelineRef: "AUC for PAD Revascularization",
	},
	{
		ID:           "PAD_002_LATERALITY",
		Name:         "Laterality Required",
		Description:  "Must document which leg (left, right, bilateral)",
		Severity:     SeverityBlock,
		Requires:     []Requirement{{Fact: "laterality"}},
		Message:      "Laterality not documented. Specify left, right, or bilateral.",
		GuidelineRef: "CPT Coding Guidelines",
	},
	{
		ID:          "PAD_003_ABI_FOR_CLAUDICATION",
		Name:        "ABI Required for Claudication",
		Description: "ABI/TBI needed to document objective ischemia for claudication",
		Severity:    SeverityWarn,
		AppliesWhen: &Condition{
			Eq: &Match{Fact: "pad_symptom_class", Value: "claudication"},
		},
		Requires:     []Requirement{{Fact: "abi_value"}},
		Alternatives: []string{"tbi_value", "toe_pressure"},
		Message:      "ABI/TBI not documented. Objective ischemia should be documented for claudication intervention.",
		GuidelineRef: "TASC II, SVS Guidelines",
	},
	{
		ID:          "PAD_004_MEDICAL_MGMT_CLAUDICATION",
		Name:        "Medical Management for Claudication",
		Description: "Must document trial of medical management before intervention for claudication",
		Severity:    SeverityWarn,
		AppliesWhen: &Condition{
			Eq: &Match{Fact: "pad_symptom_class", Value: "claudication"},
		},
		Requires: []Requirement{
			{Fact: "antiplatelet_documented"},
			{Fact: "statin_documented"},
		},
		Message:      "Medical management trial not documented. Document antiplatelet and statin therapy for claudication.",
		GuidelineRef: "AUC for PAD Revascularization",
	},
	{
		ID:          "PAD_005_CLI_WOUND",
		Name:        "Wound Documentation for CLI",
		Description: "Wound details needed for tissue loss classification",
		Severity:    SeverityWarn,
		AppliesWhen: &Condition{
			Eq: &Match{Fact: "pad_symptom_class", Value: "tissue_loss"},
		},
		Requires:     []Requirement{{Fact: "wound_present"}},
		Message:      "Wound documentation incomplete. Document wound location and staging for tissue loss.",
		GuidelineRef: "WIfI Classification",
	},
	{
		ID:           "PAD_006_TARGET_VESSEL",
		Name:         "Target Vessel Required",
		Description:  "Must document target vessel for procedure coding",
		Severity:     SeverityBlock,
		Requires:     []Requirement{{Fact: "target_vessel"}},
		Message:      "Target vessel not documented. Specify which vessels will be treated.",
		GuidelineRef: "CPT Vascular Coding",
	},
	{
		ID:          "PAD_007_STENT_JUSTIFICATION",
		Name:        "Stent Justification",
		Description: "Stent use should be justified when performed",
		Severity:    SeverityInfo,
		AppliesWhen: &Condition{
			In: &Membership{Fact: "procedure_technique", Values: []interface{}{"stent", "atherectomy_stent"}},
		},
		Requires:     []Requirement{{Fact: "stent_justification"}},
		Message:      "Stent justification not documented. Consider documenting reason for stent vs PTA alone.",
		GuidelineRef: "Medical Necessity Documentation",
	},
	{
		ID:          "CAROTID_001_STENOSIS",
		Name:        "Carotid Stenosis Degree",
		Description: "Must document stenosis percentage for carotid procedures",
		Severity:    SeverityBlock,
		AppliesWhen: &Condition{
			Eq: &Match{Fact: "target_territory", Value: "carotid"},
		},
		Requires:     []Requirement{{Fact: "carotid_stenosis_degree"}},
		Message:      "Carotid stenosis degree not documented. Specify percent stenosis.",
		GuidelineRef: "SVS Carotid Guidelines",
	},
	{
		ID:          "CAROTID_002_SYMPTOM_STATUS",
		Name:        "Carotid Symptom Status",
		Description: "Must document symptomatic vs asymptomatic for carotid",
		Severity:    SeverityBlock,
		AppliesWhen: &Condition{
			Eq: &Match{Fact: "target_territory", Value: "carotid"},
		},
		Requires:     []Requirement{{Fact: "carotid_symptom_status"}},
		Message:      "Carotid symptom status not documented. Specify symptomatic or asymptomatic.",
		GuidelineRef: "CMS LCD for Carotid Stenting",
	},
}
