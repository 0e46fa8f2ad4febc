package models

// Credential is the stored record for one owner key. Password owners carry
// verification material, OAuth owners carry profile fields.
type Credential struct {
	CreatedAt    int64  `json:"createdAt"` // unix millis
	PasswordHash string `json:"passwordHash,omitempty"`
	// BcryptHash is set on records created before argon2id was adopted.
	BcryptHash string `json:"bcryptHash,omitempty"`

	OAuthProvider string `json:"oauthProvider,omitempty"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
}

func (c Credential) IsOAuth() bool {
	return c.OAuthProvider != ""
}

// HasVerifier reports whether the record can check a password.
func (c Credential) HasVerifier() bool {
	return c.PasswordHash != "" || c.BcryptHash != ""
}
