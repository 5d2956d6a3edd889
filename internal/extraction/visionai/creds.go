package visionai

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptionsFromEnv resolves Vision credentials the same way the rest of
// the Google stack does: inline JSON first, then a key file path. Empty means
// application-default credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	if ep := strings.TrimSpace(os.Getenv("VISION_API_ENDPOINT")); ep != "" {
		opts = append(opts, option.WithEndpoint(ep))
	}
	return opts
}

// Configured reports whether explicit credentials are present; the caller
// decides whether to register the extractor at all.
func Configured() bool {
	return strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")) != "" ||
		strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")) != ""
}
