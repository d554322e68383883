package pricewatch

import "errors"

var (
	// ErrItemNotFound is returned when an item id does not exist.
	ErrItemNotFound = errors.New("pricewatch: item not found")
	// ErrProfileNotFound is returned when a profile id does not exist.
	ErrProfileNotFound = errors.New("pricewatch: notification profile not found")
	// ErrInvalidURL is returned for target URLs that are not http(s).
	ErrInvalidURL = errors.New("pricewatch: target URL must be http or https")
	// ErrBlockedURL is returned for target URLs pointing at loopback,
	// private or link-local hosts.
	ErrBlockedURL = errors.New("pricewatch: target URL host is not allowed")
)
