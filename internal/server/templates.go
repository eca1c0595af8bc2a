package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/bridge.html
var bridgePageTemplateHTML string

//go:embed templates/message.html
var messagePageTemplateHTML string

var bridgePageTemplate = template.Must(template.New("bridge").Parse(bridgePageTemplateHTML))
var messagePageTemplate = template.Must(template.New("message").Parse(messagePageTemplateHTML))

// BridgePageData feeds the bridge page that hands the credential off to the
// desktop app via its deep-link scheme.
type BridgePageData struct {
	SessionID string
	DeepLink  string
}

// MessagePageData feeds the static human-readable fallback page. The user
// has no other feedback surface in the browser at this point, so lifecycle
// errors render as readable HTML rather than a blank failure.
type MessagePageData struct {
	Title   string
	Message string
}
