package composer

import (
	"encoding/base64"

	"vision-chat/internal/service/llm"
)

// ImageDataURIPrefix is used for every attachment; PNG bytes are labelled
// JPEG too and completion endpoints accept them.
const ImageDataURIPrefix = "data:image/jpeg;base64,"

// ComposeUserMessage builds a user message from the prompt text and the raw
// attachment bytes. The text part always comes first, even when empty, and
// image parts follow in attachment order. Images mirrors the base64 payloads
// so the transcript view can redisplay thumbnails.
func ComposeUserMessage(text string, attachments [][]byte) llm.Message {
	parts := make([]llm.ContentPart, 0, len(attachments)+1)
	parts = append(parts, llm.TextPart(text))

	images := make([]string, 0, len(attachments))
	for _, data := range attachments {
		encoded := base64.StdEncoding.EncodeToString(data)
		images = append(images, encoded)
		parts = append(parts, llm.ImagePart(ImageDataURIPrefix+encoded))
	}

	return llm.Message{
		Role:   llm.RoleUser,
		Parts:  parts,
		Images: images,
	}
}
