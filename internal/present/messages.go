package present

// Messages holds every user-facing status string. The defaults are in
// Karakalpak; deployments may override any of them.
type Messages struct {
	Listening       string `yaml:"listening"`
	Searching       string `yaml:"searching"`
	TranscribeError string `yaml:"transcribe_error"`
	AnswerError     string `yaml:"answer_error"`
	Busy            string `yaml:"busy"`

	PermissionDenied string `yaml:"permission_denied"`
	DeviceNotFound   string `yaml:"device_not_found"`
	InsecureContext  string `yaml:"insecure_context"`
	CaptureFailed    string `yaml:"capture_failed"`

	Hints []Hint `yaml:"hints"`
}

// DefaultMessages returns the stock Karakalpak status strings.
func DefaultMessages() Messages {
	return Messages{
		Listening:       `Tıńlaw: aytıń "көмекші" hám súrawıñızdı.`,
		Searching:       "Qıdıraw atır...",
		TranscribeError: "Qáte: transcribe.",
		AnswerError:     "Qáte: javap alıp bolmadı.",
		Busy:            "Kútiń, aldıńǵı soraw islenbekte.",

		PermissionDenied: "Mikrofon ruxsatı qajet. Brauzerden ruxsat beriń.",
		DeviceNotFound:   "Mikrofon tabılmadı. Qurılmanı tekseriń.",
		InsecureContext:  "Secure context qajet. URL: http://localhost:8000 paydalanıń.",
		CaptureFailed:    "Mikrofon ashıwda qáte. Brauzer parametrlerin tekseriń.",

		Hints: []Hint{
			{Label: "Chrome/macOS", Text: "System Settings → Privacy & Security → Microphone → Allow for Chrome."},
			{Label: "Chrome", Text: "Site settings → Microphone → Allow for http://localhost:8000"},
			{Label: "Safari", Text: "Settings for This Website → Microphone: Allow."},
		},
	}
}

// WithDefaults returns m with every empty field taken from [DefaultMessages].
func (m Messages) WithDefaults() Messages {
	d := DefaultMessages()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.Listening, d.Listening)
	fill(&m.Searching, d.Searching)
	fill(&m.TranscribeError, d.TranscribeError)
	fill(&m.AnswerError, d.AnswerError)
	fill(&m.Busy, d.Busy)
	fill(&m.PermissionDenied, d.PermissionDenied)
	fill(&m.DeviceNotFound, d.DeviceNotFound)
	fill(&m.InsecureContext, d.InsecureContext)
	fill(&m.CaptureFailed, d.CaptureFailed)
	if len(m.Hints) == 0 {
		m.Hints = d.Hints
	}
	return m
}
