package inference

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ReplyKind names the response shape a reply was extracted from.
type ReplyKind int

const (
	KindEmpty ReplyKind = iota
	KindGenerated
	KindCandidates
	KindChatCompletion
	KindText
)

func (k ReplyKind) String() string {
	switch k {
	case KindGenerated:
		return "generated"
	case KindCandidates:
		return "candidates"
	case KindChatCompletion:
		return "chat_completion"
	case KindText:
		return "text"
	default:
		return "empty"
	}
}

// Reply is the raw generated text together with the shape it came from.
// Text is not cleaned; echoed prompts and role markers are left in place.
type Reply struct {
	Kind ReplyKind
	Text string
}

type replyShape struct {
	kind  ReplyKind
	match func(doc gjson.Result) bool
	paths []string
}

// Order matters: the first shape with a string at one of its paths wins.
// An empty path selects the document itself.
var replyShapes = []replyShape{
	{
		kind:  KindGenerated,
		match: gjson.Result.IsObject,
		paths: []string{"generated_text", "text"},
	},
	{
		kind:  KindCandidates,
		match: func(doc gjson.Result) bool { return doc.IsArray() && doc.Get("0").IsObject() },
		paths: []string{"0.generated_text", "0.text", "0.generated_texts.0"},
	},
	{
		kind:  KindChatCompletion,
		match: gjson.Result.IsObject,
		paths: []string{"choices.0.message.content", "choices.0.text"},
	},
	{
		kind:  KindText,
		match: gjson.Result.IsArray,
		paths: []string{"0"},
	},
	{
		kind:  KindText,
		match: func(doc gjson.Result) bool { return doc.Type == gjson.String },
		paths: []string{""},
	},
}

// DecodeReply extracts generated text from an inference response body.
// Bodies that are not JSON, or that carry an error object instead of
// output, fail with ErrMalformedResponse. Valid JSON with no recognised
// text decodes to KindEmpty.
func DecodeReply(body []byte) (Reply, error) {
	if !gjson.ValidBytes(body) {
		return Reply{}, fmt.Errorf("%w: body is not valid JSON", ErrMalformedResponse)
	}
	doc := gjson.ParseBytes(body)

	for _, shape := range replyShapes {
		if !shape.match(doc) {
			continue
		}
		for _, path := range shape.paths {
			v := doc
			if path != "" {
				v = doc.Get(path)
			}
			if v.Type == gjson.String {
				return Reply{Kind: shape.kind, Text: v.Str}, nil
			}
		}
	}

	if doc.IsObject() {
		if e := doc.Get("error"); e.Exists() {
			return Reply{}, fmt.Errorf("%w: upstream error: %s", ErrMalformedResponse, truncate(e.String(), 200))
		}
	}
	return Reply{Kind: KindEmpty}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
