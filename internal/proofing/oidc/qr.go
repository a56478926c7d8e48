package oidc

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QRVersion is the current QR payload format version, carried as a literal
// prefix byte in front of the JSON body.
const QRVersion = "1"

type qrBody struct {
	Nonce string `json:"nonce"`
	Token string `json:"token"`
}

// BuildQRPayload encodes the nonce and token into the versioned QR wire
// format scanned by the provider app.
func BuildQRPayload(nonce, token string) (string, error) {
	body, err := json.Marshal(qrBody{Nonce: nonce, Token: token})
	if err != nil {
		return "", fmt.Errorf("encode qr payload: %w", err)
	}
	return QRVersion + string(body), nil
}

// ParseQRPayload decodes a scanned QR payload, checking the version prefix
// before parsing the JSON body.
func ParseQRPayload(payload string) (nonce, token string, err error) {
	if !strings.HasPrefix(payload, QRVersion) {
		return "", "", fmt.Errorf("unsupported qr payload version")
	}
	var body qrBody
	if err := json.Unmarshal([]byte(payload[len(QRVersion):]), &body); err != nil {
		return "", "", fmt.Errorf("decode qr payload: %w", err)
	}
	return body.Nonce, body.Token, nil
}
