package assets

import _ "embed"

// ReportTemplate is the html/template source of the daily accountability email.
//
//go:embed report.html.tmpl
var ReportTemplate string
