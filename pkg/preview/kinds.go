package preview

import (
	"fmt"

	"boxpeer/pkg/types"
)

// Strategy 预览的呈现方式
type Strategy int

const (
	// StrategyLink 兜底：下载链接。未知类型一律走这里，永不失败
	StrategyLink Strategy = iota
	StrategyImage
	StrategyDocument
	StrategyAudio
	StrategyVideo
)

func (s Strategy) String() string {
	switch s {
	case StrategyLink:
		return "link"
	case StrategyImage:
		return "image"
	case StrategyDocument:
		return "document"
	case StrategyAudio:
		return "audio"
	case StrategyVideo:
		return "video"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

const defaultMIME = "application/octet-stream"

type kindInfo struct {
	strategy Strategy
	mime     string
}

// kinds 文件类型 -> 呈现方式 + MIME
// 新增类型只需要加一行
var kinds = map[types.FileKind]kindInfo{
	"jpg":  {StrategyImage, "image/jpeg"},
	"jpeg": {StrategyImage, "image/jpeg"},
	"png":  {StrategyImage, "image/png"},
	"gif":  {StrategyImage, "image/gif"},
	"webp": {StrategyImage, "image/webp"},
	"pdf":  {StrategyDocument, "application/pdf"},
	"mp3":  {StrategyAudio, "audio/mpeg"},
	"wav":  {StrategyAudio, "audio/wav"},
	"mp4":  {StrategyVideo, "video/mp4"},
	"mkv":  {StrategyVideo, "video/x-matroska"},
	"webm": {StrategyVideo, "video/webm"},
	"txt":  {StrategyLink, "text/plain"},
}

// StrategyFor 对任意输入 (包括空串和未知类型) 都有唯一结果
func StrategyFor(kind types.FileKind) Strategy {
	if info, ok := kinds[kind.Normalize()]; ok {
		return info.strategy
	}
	return StrategyLink
}

// MIMEType 未知类型返回 application/octet-stream
func MIMEType(kind types.FileKind) string {
	if info, ok := kinds[kind.Normalize()]; ok {
		return info.mime
	}
	return defaultMIME
}
