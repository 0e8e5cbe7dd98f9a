package storage

// Scopes partition the key/value table. Settings hold user configuration
// and the details cache; local holds per-browsing-context data such as the
// evaluation cache.
const (
	ScopeSettings = "settings"
	ScopeLocal    = "local"
)

// Fixed blob names inside the scopes.
const (
	KeyScoreSettings = "scoreSettings"
	KeyDetailsCache  = "detailsCache"
	KeyToggles       = "checkboxes"
	KeyLLMSettings   = "llmSettings"
	KeyEvalCache     = "evalCache"
)

