// Package credential loads the messaging service-account credential and
// brings its private key into canonical PEM form.
package credential

import (
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

const (
	pemBlockType = "PRIVATE KEY"
	pemHeader    = "-----BEGIN " + pemBlockType + "-----"
	pemFooter    = "-----END " + pemBlockType + "-----"
)

// escapeStripper removes literal escape sequences left behind when a key was
// pasted into an environment variable.
var escapeStripper = strings.NewReplacer(`\n`, "", `\r`, "")

// NormalizePrivateKey accepts a private key as found in configuration (with
// real newlines, escaped newlines, or on a single line, with or without the
// PEM markers) and returns a canonical PEM block with 64 character lines.
//
// Normalizing an already canonical block returns it unchanged.
func NormalizePrivateKey(raw string) (string, error) {
	body := strings.ReplaceAll(raw, pemHeader, "")
	body = strings.ReplaceAll(body, pemFooter, "")
	body = escapeStripper.Replace(body)
	body = strings.Join(strings.Fields(body), "")

	if body == "" {
		return "", fmt.Errorf("%w: empty key body", push.ErrInvalidKeyFormat)
	}

	// Strict decoding rejects non-canonical trailing bits, so re-encoding
	// reproduces the body byte for byte.
	der, err := base64.StdEncoding.Strict().DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", push.ErrInvalidKeyFormat, err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: der})), nil
}
