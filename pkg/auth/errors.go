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

import "errors"

var (
	// ErrUnauthorized is returned when a request carries no usable token.
	ErrUnauthorized = errors.New("unauthorized: authentication required")

	// ErrForbidden is returned when the subject lacks a required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	ErrInvalidToken = errors.New("invalid token")

	ErrTokenExpired = errors.New("token expired")
)
