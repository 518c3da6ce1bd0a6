package models

import (
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Event types the publishing platform sends. Anything else routes to the
// unknown-event handler, which is deliberately a no-op.
const (
	EventPublish = "publish"
	EventUpdate  = "update"
	EventDelete  = "delete"
	EventTest    = "test"
)

var validate = validator.New()

// Payload is the decoded webhook request body. The raw map is kept alongside
// the typed projection because hook subscribers receive and may transform the
// full payload, including fields this service never interprets.
type Payload struct {
	Raw  map[string]any
	Meta Meta
}

// Meta is the typed projection of the payload's meta object.
type Meta struct {
	Event     string `validate:"required"`
	FBPageIDs any
}

// DecodePayload parses a webhook body. Malformed JSON degrades to an empty
// payload rather than an error; the MAC and event-type gates then reject it
// with the standard codes, so there is no separate bad-JSON error kind.
func DecodePayload(body []byte) *Payload {
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		raw = map[string]any{}
	}

	p := &Payload{Raw: raw}
	p.project()
	return p
}

// project refreshes the typed meta view from the raw map. Called after hook
// filters may have replaced the raw payload.
func (p *Payload) project() {
	p.Meta = Meta{}
	meta, ok := p.Raw["meta"].(map[string]any)
	if !ok {
		return
	}

	if event, ok := meta["event"].(string); ok {
		p.Meta.Event = event
	}
	if ids, ok := meta["fb-page-ids"]; ok {
		p.Meta.FBPageIDs = ids
	}
}

// ReplaceRaw swaps in a (possibly hook-transformed) raw payload and
// reprojects the typed views from it.
func (p *Payload) ReplaceRaw(raw map[string]any) {
	if raw == nil {
		raw = map[string]any{}
	}
	p.Raw = raw
	p.project()
}

// HasEvent reports whether meta.event passed schema validation.
func (p *Payload) HasEvent() bool {
	return validate.Struct(p.Meta) == nil
}

// Story returns the typed story projection of the payload's data object.
func (p *Payload) Story() *Story {
	data, _ := p.Raw["data"].(map[string]any)
	return ParseStory(data)
}

// Story is the content entity exchanged with the publishing platform. Fields
// beyond these (author, tags, categories, featured image, SEO) stay in Raw
// and are consumed by hook subscribers only.
type Story struct {
	Title      string
	Content    string
	Excerpt    string
	SEOSlug    string
	AMPHTML    string
	HasAMPHTML bool

	// ExternalID is the content store's durable identifier, assigned on
	// publish and required to locate the entity on update and delete.
	ExternalID    int64
	HasExternalID bool

	Raw map[string]any
}

// ParseStory projects a data map into a typed Story. Missing strings default
// to empty; the external id accepts a JSON number or a numeric string (the
// wire format is not consistent about which it sends).
func ParseStory(data map[string]any) *Story {
	if data == nil {
		data = map[string]any{}
	}

	s := &Story{
		Title:   stringField(data, "title"),
		Content: stringField(data, "content"),
		Excerpt: stringField(data, "excerpt"),
		SEOSlug: stringField(data, "seo_slug"),
		Raw:     data,
	}

	if amp, ok := data["amphtml"].(string); ok {
		s.AMPHTML = amp
		s.HasAMPHTML = true
	}

	if id, ok := parseExternalID(data["external_id"]); ok {
		s.ExternalID = id
		s.HasExternalID = true
	}

	return s
}

// SetExternalID records the store-assigned identifier on both the typed story
// and the raw map, so downstream hook subscribers see it too.
func (s *Story) SetExternalID(id int64) {
	s.ExternalID = id
	s.HasExternalID = true
	s.Raw["external_id"] = id
}

func parseExternalID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), true
	case int64:
		return id, true
	case json.Number:
		n, err := id.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
