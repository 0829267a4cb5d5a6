// Package authapi speaks the authentication backend's JSON contract.
//
// Endpoints:
//
//	POST /auth/login       {identifier,password} -> TokenResponse
//	POST /auth/refresh     {refreshToken}        -> TokenResponse
//	GET  /auth/me                                -> User
//	POST /auth/logout      {}                    -> MessageResponse
//	POST /auth/logout-all  {}                    -> MessageResponse
//
// Failures are returned as *transport.StatusError regardless of whether the
// underlying http.Client already normalizes responses.
package authapi
