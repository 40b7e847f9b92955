package preview

import (
	"bytes"
	"fmt"
	"html/template"

	"boxpeer/pkg/types"
)

// Element 是一个 CID 的预览结果 (呈现层的不透明产物)
// Gated 时不持有任何内容字节，Handle 为空。
type Element struct {
	CID         types.CID      `json:"cid"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Kind        types.FileKind `json:"file_type"`
	Strategy    Strategy       `json:"strategy"`
	MIME        string         `json:"mime"`
	Price       types.Octas    `json:"price"`
	Gated       bool           `json:"gated"`
	Handle      BlobHandle     `json:"handle"`
}

// Interactive 媒体本身是否可交互 (Gated 时只有付费按钮可用)
func (e Element) Interactive() bool { return !e.Gated }

// PriceLabel "Free" 或 "APT x"
func (e Element) PriceLabel() string {
	if e.Price.IsZero() {
		return "Free"
	}
	return e.Price.APT()
}

// Src blob URL；html/template 默认会过滤非 http(s) 的 scheme
func (e Element) Src() template.URL {
	return template.URL(e.Handle.URL)
}

func (e Element) String() string {
	state := "unlocked"
	if e.Gated {
		state = "gated"
	}
	return fmt.Sprintf("%s [%s/%s] %s", e.CID, e.Strategy, state, e.PriceLabel())
}

var elementTmpl = template.Must(template.New("element").Parse(`
{{- define "media" -}}
{{- if eq .Strategy.String "image" -}}
<img {{if not .Gated}}src="{{.Src}}" {{end}}alt="{{.Title}}">
{{- else if eq .Strategy.String "video" -}}
<video {{if not .Gated}}controls src="{{.Src}}"{{end}}></video>
{{- else if eq .Strategy.String "audio" -}}
<audio {{if not .Gated}}controls src="{{.Src}}"{{end}}></audio>
{{- else if eq .Strategy.String "document" -}}
<iframe {{if not .Gated}}src="{{.Src}}" {{end}}title="{{.Title}}"></iframe>
{{- else -}}
{{if .Gated}}<a>Download File</a>{{else}}<a href="{{.Src}}" download>Download File</a>{{end}}
{{- end -}}
{{- end -}}
<div class="preview" data-cid="{{.CID}}" data-strategy="{{.Strategy}}">
<h3 title="{{.Description}}">{{.Title}}</h3>
<span class="price">{{.PriceLabel}}</span>
{{if .Gated -}}
<div class="media gated" style="position:relative;opacity:0.4;pointer-events:none">{{template "media" .}}</div>
<button class="pay" data-cid="{{.CID}}" data-fee="{{.Price}}">Pay to View</button>
{{- else -}}
<div class="media">{{template "media" .}}</div>
{{- end}}
</div>`))

// HTML 渲染成 HTML 片段
func (e Element) HTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := elementTmpl.Execute(&buf, e); err != nil {
		return "", fmt.Errorf("render %s: %w", e.CID, err)
	}
	return template.HTML(buf.String()), nil
}
