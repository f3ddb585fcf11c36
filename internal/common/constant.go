package common

import "time"

// TokenCookieName is the cookie that carries the session token.
const TokenCookieName = "token"

// AuthorizationHeaderName carries "Bearer <token>" on HTTP requests and the
// equivalent gRPC metadata key.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the token in the authorization header.
const BearerPrefix = "Bearer "

// TokenValidity is the lifetime of an issued token and of its cookie.
const TokenValidity = 7 * 24 * time.Hour
