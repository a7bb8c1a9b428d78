package models

type User struct {
	ID       string `json:"id" redis:"id"`
	Username string `json:"username" redis:"username"`

	// Points is the authoritative balance for internal users and a cached copy
	// of the provider's value for delegated users.
	Points int64 `json:"points" redis:"points"`

	KickUsername    string `json:"kick_username,omitempty" redis:"kick_username"`
	KickUserID      string `json:"kick_user_id,omitempty" redis:"kick_user_id"`
	DiscordUsername string `json:"discord_username,omitempty" redis:"discord_username"`
	DiscordUserID   string `json:"discord_user_id,omitempty" redis:"discord_user_id"`
	GamdomUsername  string `json:"gamdom_username,omitempty" redis:"gamdom_username"`

	CreatedAt int64 `json:"created_at" redis:"created_at"`
	UpdatedAt int64 `json:"updated_at" redis:"updated_at"`
}

// Delegated reports whether the user's balance lives with the external points provider.
func (u *User) Delegated() bool {
	return u.KickUsername != "" && u.KickUserID != ""
}

type UserSession struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`
}

type SessionRequest struct {
	Username string `json:"username"`
}

// LinkAccountRequest links an external identity. ExternalID is the Kick or
// Discord user id and is ignored for Gamdom.
type LinkAccountRequest struct {
	Username   string `json:"username"`
	ExternalID string `json:"user_id"`
}
