// Package services implements clients for the remote scorebook REST API.
//
// # Transport
//
// [APIService] owns the [http.Client], an optional [rate.Limiter] and the mapping from HTTP
// outcomes to [shared.APIError] kinds:
//   - 401, 403 : [shared.ErrAuthRequired]
//   - 404 : [shared.ErrNotFound]
//   - other 4xx and malformed bodies : [shared.ErrValidation]
//   - 5xx : [shared.ErrServer]
//   - transport failures and timeouts : [shared.ErrNetwork]
//
// A cancelled context is returned as [context.Canceled] with no kind, so callers can discard the result.
//
// # Resources
//
// [StatusService] implements [StatusRemote] for likes and favourites; responses are decoded into
// explicit schemas and checked with go-playground/validator before they reach the cache.
// [SongService] implements [Catalogue]. [AuthService] exchanges credentials for a token.
//
// # Identity
//
// [NewAuthenticatedClient] injects the bearer token through an [oauth2.Transport].
// [UserForToken] reads the acting user from the JWT without verifying it; expired tokens are anonymous.
package services
