// Package accounts implements the account lifecycle for a storefront:
// registration, email-confirmation gated activation, login, profile
// management, and password recovery.
//
// Lifecycle:
//   - Registration creates a pending account (inactive, email unconfirmed)
//     and mails an activation link. If the mail cannot be delivered the
//     account is deleted again so no orphaned pending accounts survive.
//   - Activation verifies a stateless, fingerprint-bound token and flips
//     is_active and email_confirmed atomically. Because the token derivation
//     includes both flags, a link stops verifying the moment it is used.
//   - Login only succeeds for confirmed, active accounts and records the
//     caller's IP and login time.
//   - Password reset mirrors activation with a second token purpose; the
//     credential hash is part of the token fingerprint, so replacing it
//     consumes the reset link.
//
// Tokens:
//   - TokenService derives tokens from a server-side secret, the account id,
//     a purpose label, and the account fingerprint. No token state is stored;
//     expiry falls out of an hour-granular time bucket window and single-use
//     falls out of fingerprint consumption.
//
// Storage is a Bun-backed repository (see RepositoryManager); notification
// delivery is an injected Notifier with no retry semantics.
package accounts
