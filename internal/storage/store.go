package storage

import "context"

// Keys shared with the browser storefront's local storage.
const (
	KeyCartItems   = "elinoCart"
	KeyCartID      = "elinoCartId"
	KeyToken       = "shopify_token"
	KeyTokenExpiry = "shopify_token_expires"
	KeyUserEmail   = "shopify_user_email"
)

// Store is durable string key/value storage scoped to one storefront session.
// Get reports ok=false for absent keys; Delete of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Factory opens the Store for a session namespace.
type Factory func(namespace string) Store
