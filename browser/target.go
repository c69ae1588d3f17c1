package browser

// Target is an addressable browsing context (tab or page) reported by
// the browser's debugging endpoint.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// IsPage returns true for regular page targets, as opposed to service
// workers, extensions and devtools windows.
func (t Target) IsPage() bool {
	return t.Type == "page"
}
