// Package auth is the access-control core of gatehouse.
//
// It covers three coupled concerns:
//   - Sessions: SessionAuthenticator checks an Argon2id password hash and
//     mints a stateless HS256 token; VerifySession checks signature first,
//     then expiry, without touching the store.
//   - Permissions: RoleResolver unions the tags granted by a user's roles and
//     PermissionGate enforces them. Guard composes the two stages, so an
//     operation can only be authorised with an identity produced by
//     VerifySession.
//   - Password reset: ResetManager issues one single-use credential per
//     account (a new one supersedes the old), validates it in constant time
//     and consumes it atomically together with the password update.
//
// Storage is reached through the CredentialStore and ResetStore interfaces;
// the SQLite implementations live alongside. Every store call is bounded by
// Config.StoreTimeout and failures surface as ErrStoreUnavailable.
package auth
