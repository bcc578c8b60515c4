package api

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

var (
	errNoCredentials  = errors.New("authentication required")
	errBadScheme      = errors.New("invalid authentication type")
	errBadCredentials = errors.New("invalid credentials format")
	errWrongPassword  = errors.New("invalid credentials")
)

// withAuth marks an operation as requiring basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{{"basicAuth": {}}}
}

// requireAuth rejects requests to secured operations without matching
// basic credentials. Browsers' EventSource cannot set headers, so the
// credentials may also arrive base64 encoded in the auth query parameter.
func (s *Server) requireAuth(username, password string) func(huma.Context, func(huma.Context)) {
	wantUser, wantPass := []byte(username), []byte(password)

	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		user, pass, err := credentials(ctx)
		if err == nil {
			userOK := subtle.ConstantTimeCompare([]byte(user), wantUser) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), wantPass) == 1
			if !userOK || !passOK {
				err = errWrongPassword
			}
		}
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="vidcap"`)
			_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, err.Error())
			return
		}
		next(ctx)
	}
}

// credentials extracts user and password from the Authorization header,
// falling back to the auth query parameter.
func credentials(ctx huma.Context) (user, pass string, err error) {
	encoded := ctx.Query("auth")
	if header := ctx.Header("Authorization"); header != "" {
		scheme, value, _ := strings.Cut(header, " ")
		if !strings.EqualFold(scheme, "Basic") {
			return "", "", errBadScheme
		}
		encoded = value
	}
	if encoded == "" {
		return "", "", errNoCredentials
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", errBadCredentials
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", errBadCredentials
	}
	return user, pass, nil
}
