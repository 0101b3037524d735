package config

import (
	"fmt"

	"github.com/alanyoungcy/spreadbot/internal/crypto"
	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// ResolveCredentials returns the primary credential followed by the helpers,
// with secrets loaded from inline values or encrypted files. Unnamed
// helpers become helper-1, helper-2, ...
func (c *Config) ResolveCredentials() ([]domain.Credential, error) {
	all := append([]CredentialConfig{c.Credentials.Primary}, c.Credentials.Helpers...)
	out := make([]domain.Credential, 0, len(all))
	for i, cc := range all {
		name := credentialName(cc, i)
		secret, err := crypto.LoadSecret(crypto.SecretSource{
			Raw:           cc.APISecret,
			EncryptedPath: cc.EncryptedSecretPath,
			Password:      cc.SecretPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("config: credential %s: %w", name, err)
		}
		out = append(out, domain.Credential{Name: name, Key: cc.APIKey, Secret: secret})
	}
	return out, nil
}

// credentialName is the explicit name, or "primary" for slot 0 and
// "helper-N" for helper slot N.
func credentialName(cc CredentialConfig, slot int) string {
	switch {
	case cc.Name != "":
		return cc.Name
	case slot == 0:
		return "primary"
	default:
		return fmt.Sprintf("helper-%d", slot)
	}
}

// RedactedConfig returns a copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redactCredential(&out.Credentials.Primary)
	if cfg.Credentials.Helpers != nil {
		out.Credentials.Helpers = make([]CredentialConfig, len(cfg.Credentials.Helpers))
		copy(out.Credentials.Helpers, cfg.Credentials.Helpers)
		for i := range out.Credentials.Helpers {
			redactCredential(&out.Credentials.Helpers[i])
		}
	}

	redact(&out.Redis.Password)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}

	return out
}

// redactCredential hides the secret and all but the last four characters of
// the key, so operators can still tell credentials apart in logs.
func redactCredential(c *CredentialConfig) {
	if n := len(c.APIKey); n > 4 {
		c.APIKey = redacted + c.APIKey[n-4:]
	} else {
		redact(&c.APIKey)
	}
	redact(&c.APISecret)
	redact(&c.SecretPassword)
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
