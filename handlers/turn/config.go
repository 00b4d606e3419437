package turn

// Config holds the per-session settings of a Controller.
type Config struct {
	// LLMName prefixes tutor replies on the console. Default: "LLM".
	LLMName string `json:"llm_name"`
	// TargetLanguage is the language code replies are translated into. Default: "en".
	TargetLanguage string `json:"target_language"`
	// TranslateFirst runs translation before synthesis. The translation event
	// is still emitted after the audio either way.
	TranslateFirst bool `json:"translate_first"`
	// HelpText is the reply to /help. Default: DefaultHelpText.
	HelpText string `json:"help_text"`
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() Config {
	return Config{
		LLMName:        "LLM",
		TargetLanguage: "en",
		HelpText:       DefaultHelpText,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LLMName == "" {
		c.LLMName = d.LLMName
	}
	if c.TargetLanguage == "" {
		c.TargetLanguage = d.TargetLanguage
	}
	if c.HelpText == "" {
		c.HelpText = d.HelpText
	}
	return c
}
