package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"vision-chat/internal/logger"
	chatService "vision-chat/internal/service/chat"
	"vision-chat/internal/session"

	"github.com/sirupsen/logrus"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to disk
const multipartMemory = 32 << 20

type chunkEvent struct {
	Text string `json:"text"`
}

type errorEvent struct {
	Message string `json:"message"`
}

type doneEvent struct {
	ConversationID int64  `json:"conversation_id"`
	Model          string `json:"model"`
}

func writeEvent(w io.Writer, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// ChatStreamHandler accepts a multipart chat turn (prompt + files) and
// streams the reply as server-sent events: chunk*, then error or done.
func (ch *ChatHandlers) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	uiConfig := ch.config.AppConfig.UI

	if uiConfig.MaxAttachments > 0 && uiConfig.MaxAttachmentBytes > 0 {
		limit := int64(uiConfig.MaxAttachments)*uiConfig.MaxAttachmentBytes + multipartMemory
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		ch.sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	prompt := r.FormValue("prompt")
	names, attachments, err := readAttachments(r)
	if err != nil {
		ch.sendError(w, http.StatusBadRequest, "Invalid attachment", err)
		return
	}

	if err := ch.validator.ValidateChatRequest(prompt, names, attachments); err != nil {
		ch.sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if sess.Busy() {
		ch.sendError(w, http.StatusConflict, "A reply is still being generated", session.ErrBusy)
		return
	}

	// Check if response writer supports flushing
	flusher, ok := w.(http.Flusher)
	if !ok {
		ch.sendError(w, http.StatusInternalServerError, "Streaming not supported", nil)
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"session_id":   sess.ID,
		"prompt_chars": len(prompt),
		"attachments":  len(attachments),
	}).Info("Chat stream request received")

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	resp, err := ch.chatService.SendMessage(r.Context(), sess, chatService.SendMessageRequest{
		Text:        prompt,
		Attachments: attachments,
	}, func(chunk string) error {
		return writeEvent(w, flusher, "chunk", chunkEvent{Text: chunk})
	})
	if err != nil {
		logger.Log.WithError(err).WithField("session_id", sess.ID).Error("Error from chat service")
		writeEvent(w, flusher, "error", errorEvent{Message: err.Error()})
		return
	}

	writeEvent(w, flusher, "done", doneEvent{ConversationID: resp.ConversationID, Model: resp.Model})
}

func readAttachments(r *http.Request) ([]string, [][]byte, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}

	headers := r.MultipartForm.File["files"]
	names := make([]string, 0, len(headers))
	attachments := make([][]byte, 0, len(headers))
	for _, header := range headers {
		data, err := readFile(header)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading %s: %w", header.Filename, err)
		}
		names = append(names, header.Filename)
		attachments = append(attachments, data)
	}
	return names, attachments, nil
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
