// Package wire implements the byte-level protocol shared by the chat and
// file planes (length-prefixed JSON frames over TCP) and the fixed binary
// layout of media datagrams.
package wire

// Message types used on the reliable channels.
const (
	// Chat plane.
	TypeLogin         = "login"
	TypeRegister      = "register"
	TypeAuthResponse  = "auth_response"
	TypeAuthSuccess   = "auth_success"
	TypeMessage       = "message"
	TypeSystem        = "system"
	TypeFileAvailable = "file_available"
	TypeCall          = "call"
	TypeLinkPreview   = "link_preview"
	TypeQuit          = "quit"

	// File plane.
	TypeUpload       = "upload"
	TypeDownload     = "download"
	TypeUploadOK     = "upload_ok"
	TypeDownloadMeta = "download_meta"
	TypeError        = "error"
)

// Call actions carried by TypeCall messages.
const (
	CallStart = "start"
	CallStop  = "stop"
)

// Message is the JSON envelope exchanged over the framed TCP channels.
// Only the fields relevant to a given Type are populated.
type Message struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
	Text     string `json:"text,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	RoomID   uint32 `json:"room_id,omitempty"`
	Action   string `json:"action,omitempty"`

	// Link preview fields, populated on TypeLinkPreview only.
	URL       string `json:"url,omitempty"`
	LinkTitle string `json:"link_title,omitempty"`
	LinkDesc  string `json:"link_desc,omitempty"`
	LinkImage string `json:"link_image,omitempty"`
	// Success has no omitempty: auth_response must carry success:false
	// explicitly.
	Success bool   `json:"success"`
	Reason  string `json:"message,omitempty"`
}
