package validation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AllowedImageTypes are the attachment types accepted by the uploader
var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ChatRequestValidator validates chat-related requests
type ChatRequestValidator struct {
	maxAttachments     int
	maxAttachmentBytes int64
}

// NewChatRequestValidator creates a new ChatRequestValidator.
// Non-positive limits disable the corresponding check.
func NewChatRequestValidator(maxAttachments int, maxAttachmentBytes int64) *ChatRequestValidator {
	return &ChatRequestValidator{
		maxAttachments:     maxAttachments,
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

// ValidateMessage requires some text unless images are attached
func (v *ChatRequestValidator) ValidateMessage(message string, attachmentCount int) error {
	if strings.TrimSpace(message) == "" && attachmentCount == 0 {
		return errors.New("message cannot be empty")
	}
	return nil
}

// ValidateAttachmentCount checks the number of files in one turn
func (v *ChatRequestValidator) ValidateAttachmentCount(count int) error {
	if v.maxAttachments > 0 && count > v.maxAttachments {
		return fmt.Errorf("at most %d attachments are allowed, got %d", v.maxAttachments, count)
	}
	return nil
}

// ValidateAttachment checks the size and sniffed content type of one file
func (v *ChatRequestValidator) ValidateAttachment(name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("attachment %s is empty", name)
	}

	if v.maxAttachmentBytes > 0 && int64(len(data)) > v.maxAttachmentBytes {
		return fmt.Errorf("attachment %s exceeds %d bytes", name, v.maxAttachmentBytes)
	}

	contentType := http.DetectContentType(data)
	if !AllowedImageTypes[contentType] {
		return fmt.Errorf("attachment %s must be a JPEG or PNG image, got %s", name, contentType)
	}
	return nil
}

// ValidateChatRequest validates a complete chat turn
func (v *ChatRequestValidator) ValidateChatRequest(message string, names []string, attachments [][]byte) error {
	if err := v.ValidateMessage(message, len(attachments)); err != nil {
		return err
	}

	if err := v.ValidateAttachmentCount(len(attachments)); err != nil {
		return err
	}

	for i, data := range attachments {
		name := fmt.Sprintf("#%d", i+1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		if err := v.ValidateAttachment(name, data); err != nil {
			return err
		}
	}

	return nil
}
