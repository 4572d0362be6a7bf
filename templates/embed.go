package templates

import "embed"

// EmailFS contains the HTML bodies of outgoing emails.
//
//go:embed email/*.html
var EmailFS embed.FS
