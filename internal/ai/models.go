package ai

// Brief is the structured model output for one decision.
type Brief struct {
	// Headline is a one-line summary, e.g. "Send cluster 4 now".
	Headline string `json:"headline"`

	// Note explains the call in plain language.
	Note string `json:"note"`

	// Risk flags anything the dispatcher should double check. Empty when none.
	Risk string `json:"risk,omitempty"`
}
