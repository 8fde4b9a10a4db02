// Package profile stores the per-user display profile: display name,
// biography and avatar. Profiles are keyed by the owning account's ID
// and are created lazily on first save.
package profile
