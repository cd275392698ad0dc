// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/convograph/pkg/config"
)

func TestNewJWTValidator_BadURL(t *testing.T) {
	_, err := NewJWTValidator(context.Background(), JWTValidatorConfig{JWKSURL: "http://127.0.0.1:1/jwks.json"})
	assert.Error(t, err)

	_, err = NewJWTValidator(context.Background(), JWTValidatorConfig{})
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	idp := newTestIdP(t)
	v := idp.validator(t)

	claims, err := v.ValidateToken(context.Background(), idp.sign(t, map[string]any{
		"email":     "ada@example.com",
		"role":      "admin",
		"tenant_id": "acme",
		"plan":      "gold",
	}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "gold", claims.GetStringClaim("plan"))
	assert.True(t, claims.HasAnyRole("viewer", "admin"))
	assert.False(t, claims.HasAnyRole("viewer"))
}

func TestValidateToken_Rejects(t *testing.T) {
	idp := newTestIdP(t)
	v := idp.validator(t)
	other := newTestIdP(t)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong issuer", idp.sign(t, map[string]any{jwt.IssuerKey: "https://evil.test"}), ErrInvalidToken},
		{"wrong audience", idp.sign(t, map[string]any{jwt.AudienceKey: "someone-else"}), ErrInvalidToken},
		{"expired", idp.sign(t, map[string]any{jwt.ExpirationKey: time.Now().Add(-time.Hour)}), ErrTokenExpired},
		{"unknown signer", other.sign(t, nil), ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewValidatorFromConfig(t *testing.T) {
	v, err := NewValidatorFromConfig(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = NewValidatorFromConfig(context.Background(), &config.AuthConfig{Enabled: true})
	assert.Error(t, err)

	idp := newTestIdP(t)
	v, err = NewValidatorFromConfig(context.Background(), &config.AuthConfig{
		Enabled:  true,
		JWKSURL:  idp.jwksURL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	require.NoError(t, err)
	require.NotNil(t, v)
	v.Close()
}
