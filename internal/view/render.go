// Package view renders widget state as HTML fragments.
package view

import (
	"bytes"
	"html/template"

	"github.com/extractdesk/backend/internal/models"
)

var resultTmpl = template.Must(template.New("result").Parse(
	`<div class="result"><h3>Extracted Text:</h3><pre>{{.Text}}</pre></div>`))

var widgetTmpl = template.Must(template.New("widget").Parse(`<div class="file-upload" data-widget="{{.Snap.WidgetID}}" data-phase="{{.Snap.Phase}}" data-version="{{.Snap.Version}}">
<h2>Upload a File</h2>
<input type="file" name="file">
{{- if .Snap.File}}
<span class="selected">{{.Snap.File.Name}}</span>
{{- end}}
<button type="button" class="upload"{{if not .Snap.CanUpload}} disabled{{end}}>{{if .Snap.Uploading}}Uploading...{{else}}Upload{{end}}</button>
{{- if .Snap.Notifications}}
<ul class="notifications">
{{- range .Snap.Notifications}}
<li class="notification {{.Kind}}" data-id="{{.ID}}">{{.Message}} <button type="button" class="dismiss" data-id="{{.ID}}">Dismiss</button></li>
{{- end}}
</ul>
{{- end}}
{{.Result}}
</div>`))

// RenderResult renders Result State. An absent or empty result renders nothing.
func RenderResult(r *models.UploadResult) template.HTML {
	if r == nil || r.Text == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := resultTmpl.Execute(&buf, r); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}

// RenderWidget renders the whole component for a snapshot.
func RenderWidget(s models.Snapshot) (template.HTML, error) {
	var buf bytes.Buffer
	err := widgetTmpl.Execute(&buf, struct {
		Snap   models.Snapshot
		Result template.HTML
	}{Snap: s, Result: RenderResult(s.Result)})
	if err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
