package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageURL points at an inline data URI
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one segment of a multimodal user message
type ContentPart struct {
	Type     string
	Text     string
	ImageURL *ImageURL
}

// TextPart builds a text segment
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart builds an image segment referencing url
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// MarshalJSON always emits the text key for text parts, even when empty,
// because completion endpoints reject {"type":"text"} without it.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case PartTypeText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{p.Type, p.Text})
	case PartTypeImageURL:
		if p.ImageURL == nil {
			return nil, fmt.Errorf("image_url part without url")
		}
		return json.Marshal(struct {
			Type     string    `json:"type"`
			ImageURL *ImageURL `json:"image_url"`
		}{p.Type, p.ImageURL})
	default:
		return nil, fmt.Errorf("unknown content part type %q", p.Type)
	}
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type     string    `json:"type"`
		Text     string    `json:"text"`
		ImageURL *ImageURL `json:"image_url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case PartTypeText, PartTypeImageURL:
	default:
		return fmt.Errorf("unknown content part type %q", raw.Type)
	}
	*p = ContentPart{Type: raw.Type, Text: raw.Text, ImageURL: raw.ImageURL}
	return nil
}

// Message is one transcript entry.
// User messages carry Parts (and Images for redisplay); assistant and system
// messages carry plain Text.
type Message struct {
	Role   string
	Text   string
	Parts  []ContentPart
	Images []string
}

// IsMultipart reports whether the content is serialized as a part list
func (m Message) IsMultipart() bool {
	return m.Parts != nil
}

// FirstText returns the first text segment, or the plain text content
func (m Message) FirstText() (string, bool) {
	if !m.IsMultipart() {
		return m.Text, m.Role != ""
	}
	for _, part := range m.Parts {
		if part.Type == PartTypeText {
			return part.Text, true
		}
	}
	return "", false
}

// APIContent returns the value sent as "content" to a completion endpoint
func (m Message) APIContent() any {
	if m.IsMultipart() {
		return m.Parts
	}
	return m.Text
}

type messageJSON struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Images  []string        `json:"images,omitempty"`
}

// multipart messages always carry an images list, possibly empty
type multipartMessageJSON struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Images  []string        `json:"images"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(m.APIContent())
	if err != nil {
		return nil, err
	}
	if m.IsMultipart() {
		images := m.Images
		if images == nil {
			images = []string{}
		}
		return json.Marshal(multipartMessageJSON{Role: m.Role, Content: content, Images: images})
	}
	return json.Marshal(messageJSON{Role: m.Role, Content: content, Images: m.Images})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Role == "" {
		return fmt.Errorf("message without role")
	}

	msg := Message{Role: raw.Role, Images: raw.Images}
	content := bytes.TrimSpace(raw.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
	case content[0] == '[':
		msg.Parts = []ContentPart{}
		if err := json.Unmarshal(content, &msg.Parts); err != nil {
			return fmt.Errorf("error decoding content parts: %w", err)
		}
	default:
		if err := json.Unmarshal(content, &msg.Text); err != nil {
			return fmt.Errorf("error decoding content: %w", err)
		}
	}
	*m = msg
	return nil
}

// EncodeTranscript serializes a transcript for storage
func EncodeTranscript(messages []Message) (string, error) {
	if messages == nil {
		messages = []Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("error encoding transcript: %w", err)
	}
	return string(data), nil
}

// DecodeTranscript parses a stored transcript
func DecodeTranscript(data string) ([]Message, error) {
	var messages []Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("error decoding transcript: %w", err)
	}
	return messages, nil
}
