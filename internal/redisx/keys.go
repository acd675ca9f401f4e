package redisx

import "time"

const (
	// Cart reference per visitor session: session:{sid}:cart -> cart_id
	KeySessionCart = "session:%s:cart"

	// Last cart state fetched from backend: session:{sid}:cart_state -> JSON cart
	KeyCartState = "session:%s:cart_state"

	// Checkout progress: checkout:{sid} -> JSON state
	KeyCheckout = "checkout:%s"

	// Customer auth: session:{sid}:customer_token -> bearer token
	KeyCustomerToken = "session:%s:customer_token"

	// Cached customer record: session:{sid}:customer -> JSON {customer, fetched_at}
	KeyCustomer = "session:%s:customer"

	// Catalog read cache: catalog:{kind}:{hash}
	KeyCatalog = "catalog:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLSession     = 30 * 24 * time.Hour
	TTLCartState   = 24 * time.Hour
	TTLCheckout    = 24 * time.Hour
	TTLToken       = 7 * 24 * time.Hour
	TTLCustomer    = 7 * 24 * time.Hour // staleness dicek lewat fetched_at, bukan TTL
	TTLCatalog     = 5 * time.Minute
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
