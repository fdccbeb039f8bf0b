package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obssync/engine/internal/obssync"
)

type helloData struct {
	ObsWebSocketVersion string         `json:"obsWebSocketVersion"`
	RPCVersion          int            `json:"rpcVersion"`
	Authentication      *authChallenge `json:"authentication,omitempty"`
}

type authChallenge struct {
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

type identifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

// handshake performs the OBS WebSocket v5 Hello/Identify exchange and
// returns the version info reported in Hello. Auth uses the SHA256
// challenge/salt scheme: base64(sha256(base64(sha256(password+salt))+challenge)).
func (c *Client) handshake(conn *websocket.Conn) (VersionInfo, error) {
	conn.SetReadDeadline(time.Now().Add(RequestTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return VersionInfo{}, fmt.Errorf("obs: %w: read Hello: %v", obssync.ErrProtocol, err)
	}

	var hello wireMessage
	if err := json.Unmarshal(raw, &hello); err != nil {
		return VersionInfo{}, fmt.Errorf("obs: %w: parse Hello: %v", obssync.ErrProtocol, err)
	}
	if hello.Op != opHello {
		return VersionInfo{}, fmt.Errorf("obs: %w: expected Hello (op %d), got op %d",
			obssync.ErrProtocol, opHello, hello.Op)
	}

	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil {
		return VersionInfo{}, fmt.Errorf("obs: %w: parse Hello data: %v", obssync.ErrProtocol, err)
	}

	identify := identifyData{RPCVersion: 1}
	if hd.Authentication != nil {
		identify.Authentication = generateAuthString(c.password, hd.Authentication.Salt, hd.Authentication.Challenge)
	}

	identifyPayload, err := json.Marshal(identify)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("obs: marshal Identify: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(RequestTimeout))
	if err := conn.WriteJSON(wireMessage{Op: opIdentify, D: identifyPayload}); err != nil {
		return VersionInfo{}, fmt.Errorf("obs: %w: send Identify: %v", obssync.ErrPeerGone, err)
	}

	conn.SetReadDeadline(time.Now().Add(RequestTimeout))
	_, raw, err = conn.ReadMessage()
	if err != nil {
		return VersionInfo{}, fmt.Errorf("obs: %w: read Identified: %v", obssync.ErrProtocol, err)
	}

	var resp wireMessage
	if err := json.Unmarshal(raw, &resp); err != nil {
		return VersionInfo{}, fmt.Errorf("obs: %w: parse Identified: %v", obssync.ErrProtocol, err)
	}
	if resp.Op != opIdentified {
		return VersionInfo{}, fmt.Errorf("obs: %w: authentication rejected (op %d)", obssync.ErrAuth, resp.Op)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	return VersionInfo{OBSWebSocketVersion: hd.ObsWebSocketVersion}, nil
}

// generateAuthString implements OBS WS v5 auth:
// base64(sha256(base64(sha256(password+salt)) + challenge))
func generateAuthString(password, salt, challenge string) string {
	h1 := sha256.Sum256([]byte(password + salt))
	b64Secret := base64.StdEncoding.EncodeToString(h1[:])

	h2 := sha256.Sum256([]byte(b64Secret + challenge))
	return base64.StdEncoding.EncodeToString(h2[:])
}
