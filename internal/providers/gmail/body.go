package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// plainTextBody decodes a base64url RFC 5322 message and returns its first
// text/plain part. A single-part message returns its body whatever the type.
func plainTextBody(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}

	data, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return "", fmt.Errorf("failed to decode raw message: %w", err)
		}
	}

	reader, err := mail.CreateReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}
	defer reader.Close()

	topType, _, _ := reader.Header.ContentType()
	multipart := strings.HasPrefix(topType, "multipart/")

	var fallback string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read message part: %w", err)
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		mediaType, _, _ := header.ContentType()
		if strings.HasPrefix(mediaType, "text/plain") || mediaType == "" {
			return string(body), nil
		}
		if !multipart && fallback == "" {
			fallback = string(body)
		}
	}

	return fallback, nil
}
