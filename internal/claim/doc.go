// Package claim provides an idempotency claim set used to guarantee
// at-most-once execution of keyed work, such as first-contact processing
// for a conversation id.
package claim
