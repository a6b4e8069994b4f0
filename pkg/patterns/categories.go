package patterns

// Probe signatures. All regexes are case-insensitive and intentionally
// narrow: a false "uncategorized" is harmless, a wrong label sends an
// operator down the wrong path.

func (r *Registry) registerPromptProbePatterns() {
	r.register("system_prompt_direct",
		`(?i)\b(system|initial|original|hidden)\s+(prompt|instructions?|message)\b`,
		CategoryPromptProbe, 80)
	r.register("instructions_verbatim",
		`(?i)\b(repeat|print|show|reveal|output|display)\b.{0,40}\b(instructions?|prompt|rules|guidelines)\b`,
		CategoryPromptProbe, 75)
	r.register("everything_above",
		`(?i)\b(everything|text|words?)\s+(above|before)\b.{0,30}\b(this|conversation|message)\b`,
		CategoryPromptProbe, 70)
}

func (r *Registry) registerModelExtractionPatterns() {
	r.register("weights_request",
		`(?i)\b(weights?|parameters?|checkpoints?|logits)\b.{0,40}\b(model|network|layers?)\b`,
		CategoryModelExtraction, 85)
	r.register("architecture_probe",
		`(?i)\b(exact|internal|underlying)\s+(architecture|structure|implementation)\b`,
		CategoryModelExtraction, 70)
	r.register("layer_enumeration",
		`(?i)\bhow many\s+(layers?|parameters?|heads?|dimensions?)\b`,
		CategoryModelExtraction, 65)
}

func (r *Registry) registerDistillationPatterns() {
	r.register("bulk_generation",
		`(?i)\b(generate|produce|write|give me)\b.{0,20}\b\d{2,}\s+(examples?|samples?|variations?|pairs?)\b`,
		CategoryDistillation, 75)
	r.register("training_data_request",
		`(?i)\b(training|fine.?tun\w+|distill\w*)\b.{0,40}\b(data|dataset|outputs?|responses?)\b`,
		CategoryDistillation, 80)
	r.register("qa_pair_harvest",
		`(?i)\b(question.?answer|q&a|instruction.?response)\s+(pairs?|datasets?|sets?)\b`,
		CategoryDistillation, 70)
}

func (r *Registry) registerJailbreakPatterns() {
	r.register("instruction_override",
		`(?i)\b(ignore|disregard|forget|override)\b.{0,30}\b(previous|prior|above|all)\b.{0,30}\b(instructions?|rules|prompts?)\b`,
		CategoryJailbreak, 90)
	r.register("persona_switch",
		`(?i)\b(pretend|act|roleplay)\b.{0,20}\b(you are|as if|to be)\b.{0,40}\b(unrestricted|unfiltered|without (rules|limits|restrictions))\b`,
		CategoryJailbreak, 85)
	r.register("dan_style",
		`(?i)\b(DAN|do anything now|developer mode|jailbreak)\b`,
		CategoryJailbreak, 85)
}

func (r *Registry) registerReconPatterns() {
	r.register("sampling_params",
		`(?i)\b(temperature|top.?p|top.?k|sampling)\s+(setting|value|parameter)s?\b`,
		CategoryRecon, 60)
	r.register("version_probe",
		`(?i)\b(which|what)\s+(model|version|release)\b.{0,30}\b(are you|running|deployed)\b`,
		CategoryRecon, 55)
	r.register("cutoff_probe",
		`(?i)\b(training|knowledge)\s+(cut.?off|date)\b`,
		CategoryRecon, 50)
}
